package repository

import (
	"context"
	"time"

	"cleantransparency/backend/pkg/models"
)

// Repository is the durable-storage contract consumed by the workflow
// engine, the HITL coordinator, and the read paths. Implementations
// translate their driver errors into the models error taxonomy:
// models.ErrNotFound for missing rows, models.ErrStorageUnavailable for an
// unreachable store.
type Repository interface {
	// UpsertRequest inserts the request or, when the request_id already
	// exists, updates its mutable fields and status.
	UpsertRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, requestID string) (*models.Request, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status models.RequestStatus) error

	// SaveExecution upserts the workflow execution keyed by request_id.
	SaveExecution(ctx context.Context, exec *models.WorkflowExecution) error
	GetExecution(ctx context.Context, requestID string) (*models.WorkflowExecution, error)

	// CreateCertificate issues the certificate for a request. Issuance is
	// idempotent per request_id: when a certificate already exists the
	// stored one is returned and no second row is created.
	CreateCertificate(ctx context.Context, cert *models.Certificate) (*models.Certificate, error)
	GetCertificate(ctx context.Context, certificadoID string) (*models.Certificate, error)
	GetCertificateByRequest(ctx context.Context, requestID string) (*models.Certificate, error)

	// ApplyHITLDecision performs the guarded decision update: it succeeds
	// only while hitl_decision is still NULL, guaranteeing at most one
	// decision per case under concurrent submissions. An escalate decision
	// leaves hitl_decision NULL so the case is re-queued. Returns
	// models.ErrAlreadyDecided when the guard fails on a decided case and
	// models.ErrNotFound when no escalated case matches.
	ApplyHITLDecision(ctx context.Context, requestID string, decision models.HITLDecision, reviewer, notes string, newStatus models.RequestStatus) (*models.DecisionResult, error)

	// ListPendingHITL pages the review queue ordered by risk severity
	// (ALTO, MEDIO, BAJO) and, within a severity, by creation time ascending.
	ListPendingHITL(ctx context.Context, limit, offset int) (*models.PendingCases, error)

	AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error
	// ListAuditEvents returns the audit log for a request ordered by
	// timestamp ascending.
	ListAuditEvents(ctx context.Context, requestID string) ([]models.AuditEvent, error)

	// HITLStatistics aggregates decision counts and mean review latency for
	// cases created within the trailing window.
	HITLStatistics(ctx context.Context, window time.Duration) (*models.HITLStatistics, error)
}
