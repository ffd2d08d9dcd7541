// Package workflow runs the certification pipeline: ingest, risk
// assessment, compliance check, finalize. Each stage appends its hash to
// the chain; a high-risk assessment suspends the run into human review
// before compliance.
package workflow

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"cleantransparency/backend/internal/hashchain"
	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/internal/signing"
	"cleantransparency/backend/pkg/models"
)

const actorEngine = "workflow-engine"

// Engine drives a request through the fixed stage sequence. Storage
// failures during a run are logged and counted but never abort the
// pipeline: the run continues on its in-memory state and the result is
// flagged as degraded. That trades durability for availability, so the
// counter below must be watched operationally.
type Engine struct {
	repo    repository.Repository
	scorer  RiskScorer
	checker ComplianceChecker
	signer  signing.Signer
	logger  *logging.Logger

	storageFailures metric.Int64Counter
}

// NewEngine creates an Engine. signer may be nil, in which case
// certificates are issued without a notarizing signature.
func NewEngine(repo repository.Repository, scorer RiskScorer, checker ComplianceChecker, signer signing.Signer, logger *logging.Logger) *Engine {
	meter := otel.Meter("cleantransparency/workflow")
	counter, err := meter.Int64Counter("certification.storage_failures",
		metric.WithDescription("Storage writes dropped while the pipeline continued in degraded mode"))
	if err != nil {
		logger.Error("failed to create storage failure counter", "error", err)
	}
	return &Engine{
		repo:            repo,
		scorer:          scorer,
		checker:         checker,
		signer:          signer,
		logger:          logger,
		storageFailures: counter,
	}
}

// run carries per-invocation bookkeeping alongside the hashed state.
type run struct {
	state       *models.WorkflowState
	riskTS      *time.Time
	compTS      *time.Time
	degraded    bool
	signerError string
}

// Run executes the full pipeline for one request. Validation failures are
// fatal to the request; storage failures are not.
func (e *Engine) Run(ctx context.Context, input *models.WorkflowInput) (*models.WorkflowResult, error) {
	r, err := e.ingest(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := e.riskAssessment(ctx, r); err != nil {
		return nil, err
	}
	if r.state.HITLRequired {
		return e.suspend(ctx, r), nil
	}

	if err := e.complianceCheck(ctx, r); err != nil {
		return nil, err
	}

	return e.finalize(ctx, r)
}

// Resume continues a suspended or interrupted pipeline from the first
// missing stage. A HITL-suspended request may only resume once a reviewer
// approved it; approval itself never issues the certificate.
func (e *Engine) Resume(ctx context.Context, requestID string) (*models.WorkflowResult, error) {
	exec, err := e.repo.GetExecution(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req, err := e.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if cert, err := e.repo.GetCertificateByRequest(ctx, requestID); err == nil {
		result := resultFromExecution(exec)
		result.Status = models.StatusCompleted
		result.Certificate = cert
		return result, nil
	}

	if exec.HITLRequired {
		switch {
		case exec.HITLDecision == nil:
			return nil, fmt.Errorf("%w: request %s is awaiting human review", models.ErrValidation, requestID)
		case *exec.HITLDecision != models.DecisionApprove:
			return nil, fmt.Errorf("%w: request %s was not approved (decision %s)", models.ErrValidation, requestID, *exec.HITLDecision)
		}
	}
	if exec.HashRiesgo == "" {
		return nil, fmt.Errorf("%w: request %s cannot resume before risk assessment", models.ErrValidation, requestID)
	}

	r := &run{
		state: &models.WorkflowState{
			RequestID:       req.RequestID,
			ProveedorRUT:    req.ProveedorRUT,
			ProveedorNombre: req.ProveedorNombre,
			MontoContrato:   req.MontoContrato,
			ObjetoContrato:  req.ObjetoContrato,
			IngestTimestamp: exec.IngestTimestamp,
			HashIngest:      exec.HashIngest,
			Riesgo:          exec.Riesgo,
			HashRiesgo:      exec.HashRiesgo,
			Cumplimiento:    exec.Cumplimiento,
			HashCompliance:  exec.HashCompliance,
			HITLRequired:    exec.HITLRequired,
			HITLReason:      exec.HITLReason,
			Status:          models.StatusProcessing,
		},
		riskTS: exec.RiskTimestamp,
		compTS: exec.ComplianceTimestamp,
	}

	e.persist(ctx, requestID, "append_audit_event", r, func() error {
		return e.repo.AppendAuditEvent(ctx, &models.AuditEvent{
			RequestID: requestID,
			EventType: models.EventWorkflowResumed,
			Actor:     actorEngine,
		})
	})

	if r.state.HashCompliance == "" {
		if err := e.complianceCheck(ctx, r); err != nil {
			return nil, err
		}
	}
	return e.finalize(ctx, r)
}

// ingest validates the input, stamps the ingest timestamp, and computes the
// first link of the hash chain.
func (e *Engine) ingest(ctx context.Context, input *models.WorkflowInput) (*run, error) {
	if input == nil || input.RequestID == "" {
		return nil, fmt.Errorf("%w: request_id is required", models.ErrValidation)
	}
	if input.ProveedorRUT == "" {
		return nil, fmt.Errorf("%w: proveedor_rut is required", models.ErrValidation)
	}

	now := time.Now().UTC()
	state := &models.WorkflowState{
		RequestID:       input.RequestID,
		ProveedorRUT:    input.ProveedorRUT,
		ProveedorNombre: input.ProveedorNombre,
		MontoContrato:   input.MontoContrato,
		ObjetoContrato:  input.ObjetoContrato,
		IngestTimestamp: &now,
		Status:          models.StatusProcessing,
	}
	state.HashIngest = hashchain.Fingerprint(state)

	r := &run{state: state}
	e.persist(ctx, input.RequestID, "upsert_request", r, func() error {
		return e.repo.UpsertRequest(ctx, &models.Request{
			RequestID:       input.RequestID,
			ProveedorRUT:    input.ProveedorRUT,
			ProveedorNombre: input.ProveedorNombre,
			MontoContrato:   input.MontoContrato,
			ObjetoContrato:  input.ObjetoContrato,
			Status:          models.StatusProcessing,
		})
	})
	return r, nil
}

// riskAssessment delegates to the pluggable scorer and chains its hash. An
// ALTO category marks the case for human review and suspends the pipeline.
func (e *Engine) riskAssessment(ctx context.Context, r *run) error {
	level, err := e.scorer.Score(ctx, r.state)
	if err != nil {
		e.fail(ctx, r)
		return fmt.Errorf("risk assessment failed for %s: %w", r.state.RequestID, err)
	}

	now := time.Now().UTC()
	r.riskTS = &now
	r.state.Riesgo = level
	r.state.HashRiesgo = hashchain.Fingerprint(r.state)

	if level == models.RiskAlto {
		r.state.HITLRequired = true
		r.state.HITLReason = fmt.Sprintf("risk level %s requires human review", level)
		r.state.Status = models.StatusHITLRequired
	}
	return nil
}

// suspend persists the escalated case and hands control to the HITL queue.
func (e *Engine) suspend(ctx context.Context, r *run) *models.WorkflowResult {
	e.persist(ctx, r.state.RequestID, "save_execution", r, func() error {
		return e.repo.SaveExecution(ctx, e.execution(r))
	})
	e.persist(ctx, r.state.RequestID, "update_request_status", r, func() error {
		return e.repo.UpdateRequestStatus(ctx, r.state.RequestID, models.StatusHITLRequired)
	})
	e.persist(ctx, r.state.RequestID, "append_audit_event", r, func() error {
		return e.repo.AppendAuditEvent(ctx, &models.AuditEvent{
			RequestID: r.state.RequestID,
			EventType: models.EventHITLEscalated,
			Actor:     actorEngine,
			Details: map[string]any{
				"riesgo": string(r.state.Riesgo),
				"reason": r.state.HITLReason,
			},
		})
	})

	e.logger.Info("workflow suspended for human review",
		"request_id", r.state.RequestID, "riesgo", string(r.state.Riesgo))
	return e.result(r)
}

// complianceCheck delegates to the pluggable evaluator and chains its hash.
func (e *Engine) complianceCheck(ctx context.Context, r *run) error {
	ok, err := e.checker.Check(ctx, r.state)
	if err != nil {
		e.fail(ctx, r)
		return fmt.Errorf("compliance check failed for %s: %w", r.state.RequestID, err)
	}

	now := time.Now().UTC()
	r.compTS = &now
	r.state.Cumplimiento = &ok
	r.state.HashCompliance = hashchain.Fingerprint(r.state)
	return nil
}

// finalize closes the chain, issues the certificate, and records the
// completion event. Issuance is idempotent: a request that already holds a
// certificate keeps it.
func (e *Engine) finalize(ctx context.Context, r *run) (*models.WorkflowResult, error) {
	if cert, err := e.repo.GetCertificateByRequest(ctx, r.state.RequestID); err == nil {
		r.state.Status = models.StatusCompleted
		result := e.result(r)
		result.Certificate = cert
		result.HashFinal = cert.HashFinal
		return result, nil
	}

	now := time.Now().UTC()
	r.state.CertificadoID = newCertificateID()
	r.state.FinalTimestamp = &now
	r.state.HashFinal = hashchain.Fingerprint(r.state)
	r.state.Status = models.StatusCompleted

	cert := &models.Certificate{
		CertificadoID: r.state.CertificadoID,
		RequestID:     r.state.RequestID,
		HashFinal:     r.state.HashFinal,
		IssuedAt:      now,
	}
	if e.signer != nil {
		firma, err := e.signer.Sign(r.state.HashFinal)
		if err != nil {
			// Reported, never retried; the certificate is issued unsigned.
			r.signerError = err.Error()
			e.logger.Error("signer failed, issuing certificate without signature",
				"request_id", r.state.RequestID, "error", err)
		} else {
			cert.FirmaDigital = firma
		}
	}

	e.persist(ctx, r.state.RequestID, "save_execution", r, func() error {
		return e.repo.SaveExecution(ctx, e.execution(r))
	})
	e.persist(ctx, r.state.RequestID, "create_certificate", r, func() error {
		stored, err := e.repo.CreateCertificate(ctx, cert)
		if err != nil {
			return err
		}
		cert = stored
		return nil
	})
	e.persist(ctx, r.state.RequestID, "update_request_status", r, func() error {
		return e.repo.UpdateRequestStatus(ctx, r.state.RequestID, models.StatusCompleted)
	})
	e.persist(ctx, r.state.RequestID, "append_audit_event", r, func() error {
		return e.repo.AppendAuditEvent(ctx, &models.AuditEvent{
			RequestID: r.state.RequestID,
			EventType: models.EventWorkflowCompleted,
			Actor:     actorEngine,
			Details: map[string]any{
				"certificado_id": cert.CertificadoID,
				"hash_final":     cert.HashFinal,
			},
		})
	})

	e.logger.Info("workflow completed",
		"request_id", r.state.RequestID, "certificado_id", cert.CertificadoID)

	result := e.result(r)
	result.Certificate = cert
	return result, nil
}

// fail marks the request failed, best effort.
func (e *Engine) fail(ctx context.Context, r *run) {
	r.state.Status = models.StatusFailed
	e.persist(ctx, r.state.RequestID, "save_execution", r, func() error {
		return e.repo.SaveExecution(ctx, e.execution(r))
	})
	e.persist(ctx, r.state.RequestID, "update_request_status", r, func() error {
		return e.repo.UpdateRequestStatus(ctx, r.state.RequestID, models.StatusFailed)
	})
}

// persist runs a storage write in degraded mode: a failure is logged and
// counted, and the pipeline continues on in-memory state only.
func (e *Engine) persist(ctx context.Context, requestID, op string, r *run, fn func() error) {
	if err := fn(); err != nil {
		r.degraded = true
		if e.storageFailures != nil {
			e.storageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		}
		e.logger.Warn("storage degraded, continuing in memory",
			"operation", op, "request_id", requestID, "error", err)
	}
}

func (e *Engine) execution(r *run) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		RequestID:           r.state.RequestID,
		Status:              r.state.Status,
		IngestTimestamp:     r.state.IngestTimestamp,
		HashIngest:          r.state.HashIngest,
		RiskTimestamp:       r.riskTS,
		Riesgo:              r.state.Riesgo,
		HashRiesgo:          r.state.HashRiesgo,
		ComplianceTimestamp: r.compTS,
		Cumplimiento:        r.state.Cumplimiento,
		HashCompliance:      r.state.HashCompliance,
		FinalTimestamp:      r.state.FinalTimestamp,
		HashFinal:           r.state.HashFinal,
		HITLRequired:        r.state.HITLRequired,
		HITLReason:          r.state.HITLReason,
	}
}

func (e *Engine) result(r *run) *models.WorkflowResult {
	return &models.WorkflowResult{
		RequestID:      r.state.RequestID,
		Status:         r.state.Status,
		Riesgo:         r.state.Riesgo,
		Cumplimiento:   r.state.Cumplimiento,
		HashIngest:     r.state.HashIngest,
		HashRiesgo:     r.state.HashRiesgo,
		HashCompliance: r.state.HashCompliance,
		HashFinal:      r.state.HashFinal,
		HITLRequired:   r.state.HITLRequired,
		HITLReason:     r.state.HITLReason,
		Degraded:       r.degraded,
		SignerError:    r.signerError,
	}
}

func resultFromExecution(exec *models.WorkflowExecution) *models.WorkflowResult {
	return &models.WorkflowResult{
		RequestID:      exec.RequestID,
		Status:         exec.Status,
		Riesgo:         exec.Riesgo,
		Cumplimiento:   exec.Cumplimiento,
		HashIngest:     exec.HashIngest,
		HashRiesgo:     exec.HashRiesgo,
		HashCompliance: exec.HashCompliance,
		HashFinal:      exec.HashFinal,
		HITLRequired:   exec.HITLRequired,
		HITLReason:     exec.HITLReason,
	}
}

// newCertificateID generates a certificate identifier in the CERT-<10 hex>
// format.
func newCertificateID() string {
	u := uuid.New()
	return "CERT-" + hex.EncodeToString(u[:])[:10]
}
