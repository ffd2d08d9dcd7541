package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cleantransparency/backend/internal/auth"
	"cleantransparency/backend/pkg/models"
)

// ListPendingCases returns the page of cases awaiting human review,
// highest risk first.
// (GET /api/v2/hitl/pending)
func (s *Server) ListPendingCases(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	cases, err := s.Coordinator.ListPending(c.Request().Context(), limit, offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cases)
}

// GetCaseDetail returns the full projection of one escalated case.
// (GET /api/v2/hitl/cases/:request_id)
func (s *Server) GetCaseDetail(c echo.Context) error {
	detail, err := s.Coordinator.GetCaseDetail(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// DecisionRequest is the request body for a reviewer decision. The
// reviewer identity comes from the authenticated session, never the body.
type DecisionRequest struct {
	Decision models.HITLDecision `json:"decision"`
	Notes    string              `json:"notes"`
}

// SubmitDecision records a reviewer's decision on a pending case.
// (POST /api/v2/hitl/cases/:request_id/decision)
func (s *Server) SubmitDecision(c echo.Context) error {
	ctx := c.Request().Context()

	reviewer := auth.ReviewerFromContext(ctx)
	if reviewer == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "reviewer identity not found in context")
	}

	var body DecisionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	result, err := s.Coordinator.SubmitDecision(ctx, c.Param("request_id"), body.Decision, reviewer, body.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetHITLStatistics returns decision aggregates over the trailing window.
// (GET /api/v2/hitl/statistics)
func (s *Server) GetHITLStatistics(c echo.Context) error {
	stats, err := s.Coordinator.Statistics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
