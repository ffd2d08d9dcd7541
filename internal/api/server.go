// Package api contains the HTTP handlers for the certification service.
package api

import (
	"github.com/labstack/echo/v4"

	"cleantransparency/backend/internal/audit"
	"cleantransparency/backend/internal/hitl"
	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/internal/signing"
	"cleantransparency/backend/internal/verify"
	"cleantransparency/backend/internal/workflow"
)

// Server holds the dependencies for the API server.
type Server struct {
	Engine      *workflow.Engine
	Coordinator *hitl.Coordinator
	Verifier    *verify.Verifier
	Trail       *audit.TrailBuilder
	Signer      signing.Signer
	Repo        repository.Repository
	Logger      *logging.Logger
}

// NewServer creates a new Server.
func NewServer(engine *workflow.Engine, coordinator *hitl.Coordinator, verifier *verify.Verifier, trail *audit.TrailBuilder, signer signing.Signer, repo repository.Repository, logger *logging.Logger) *Server {
	return &Server{
		Engine:      engine,
		Coordinator: coordinator,
		Verifier:    verifier,
		Trail:       trail,
		Signer:      signer,
		Repo:        repo,
		Logger:      logger,
	}
}

// RegisterRoutes mounts all versioned API routes on the given group. The
// caller decides which middleware (auth, telemetry) wraps the group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/workflows/art17/run", s.RunWorkflow)
	g.POST("/workflows/art17/:request_id/resume", s.ResumeWorkflow)
	g.GET("/workflows/art17/:request_id", s.GetWorkflowStatus)

	g.GET("/certificates/:certificado_id", s.GetCertificate)
	g.GET("/certificates/:certificado_id/verify", s.VerifyCertificate)

	g.GET("/audit/trail/:request_id", s.GetAuditTrail)

	g.GET("/hitl/pending", s.ListPendingCases)
	g.GET("/hitl/statistics", s.GetHITLStatistics)
	g.GET("/hitl/cases/:request_id", s.GetCaseDetail)
	g.POST("/hitl/cases/:request_id/decision", s.SubmitDecision)

	g.POST("/sign/hash", s.SignHash)
}
