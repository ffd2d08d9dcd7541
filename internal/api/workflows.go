package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"cleantransparency/backend/pkg/models"
)

// RunWorkflowRequest is the request body for starting a certification run.
type RunWorkflowRequest struct {
	RequestID       string  `json:"request_id"`
	ProveedorRUT    string  `json:"proveedor_rut"`
	ProveedorNombre string  `json:"proveedor_nombre"`
	MontoContrato   float64 `json:"monto_contrato"`
	ObjetoContrato  string  `json:"objeto_contrato"`
}

// RunWorkflow starts the certification pipeline for a procurement request.
// (POST /api/v2/workflows/art17/run)
func (s *Server) RunWorkflow(c echo.Context) error {
	var body RunWorkflowRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	if body.RequestID == "" {
		body.RequestID = uuid.New().String()
	}

	result, err := s.Engine.Run(c.Request().Context(), &models.WorkflowInput{
		RequestID:       body.RequestID,
		ProveedorRUT:    body.ProveedorRUT,
		ProveedorNombre: body.ProveedorNombre,
		MontoContrato:   body.MontoContrato,
		ObjetoContrato:  body.ObjetoContrato,
	})
	if err != nil {
		return httpError(err)
	}

	status := http.StatusOK
	if result.Status == models.StatusHITLRequired {
		status = http.StatusAccepted
	}
	return c.JSON(status, result)
}

// ResumeWorkflow continues a suspended pipeline after reviewer approval.
// (POST /api/v2/workflows/art17/:request_id/resume)
func (s *Server) ResumeWorkflow(c echo.Context) error {
	result, err := s.Engine.Resume(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetWorkflowStatus returns the stored execution for a request.
// (GET /api/v2/workflows/art17/:request_id)
func (s *Server) GetWorkflowStatus(c echo.Context) error {
	exec, err := s.Repo.GetExecution(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, exec)
}
