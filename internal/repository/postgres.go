package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleantransparency/backend/pkg/models"
)

// PostgresRepository is a PostgreSQL implementation of the Repository
// interface backed by a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// translate maps driver errors into the shared taxonomy.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpsertRequest inserts the request or updates its mutable fields when the
// request_id already exists.
func (r *PostgresRepository) UpsertRequest(ctx context.Context, req *models.Request) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO requests (request_id, proveedor_rut, proveedor_nombre, monto_contrato, objeto_contrato, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO UPDATE
		SET proveedor_rut    = EXCLUDED.proveedor_rut,
		    proveedor_nombre = EXCLUDED.proveedor_nombre,
		    monto_contrato   = EXCLUDED.monto_contrato,
		    objeto_contrato  = EXCLUDED.objeto_contrato,
		    status           = EXCLUDED.status,
		    updated_at       = now()`,
		req.RequestID, req.ProveedorRUT, nullable(req.ProveedorNombre), req.MontoContrato, nullable(req.ObjetoContrato), req.Status)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetRequest retrieves a request by its ID.
func (r *PostgresRepository) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	var req models.Request
	var nombre, objeto *string
	var monto *float64
	err := r.db.QueryRow(ctx, `
		SELECT request_id, proveedor_rut, proveedor_nombre, monto_contrato, objeto_contrato, status, created_at, updated_at
		FROM requests WHERE request_id = $1`, requestID).
		Scan(&req.RequestID, &req.ProveedorRUT, &nombre, &monto, &objeto, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	req.ProveedorNombre = deref(nombre)
	req.ObjetoContrato = deref(objeto)
	if monto != nil {
		req.MontoContrato = *monto
	}
	return &req, nil
}

// UpdateRequestStatus sets the lifecycle status of a request.
func (r *PostgresRepository) UpdateRequestStatus(ctx context.Context, requestID string, status models.RequestStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE requests SET status = $2, updated_at = now() WHERE request_id = $1`,
		requestID, status)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SaveExecution upserts the workflow execution keyed by request_id.
func (r *PostgresRepository) SaveExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_executions (
			request_id, status,
			ingest_timestamp, hash_ingest,
			risk_timestamp, riesgo, hash_riesgo,
			compliance_timestamp, cumplimiento, hash_compliance,
			timestamp_final, hash_final,
			hitl_required, hitl_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (request_id) DO UPDATE
		SET status               = EXCLUDED.status,
		    ingest_timestamp     = EXCLUDED.ingest_timestamp,
		    hash_ingest          = EXCLUDED.hash_ingest,
		    risk_timestamp       = EXCLUDED.risk_timestamp,
		    riesgo               = EXCLUDED.riesgo,
		    hash_riesgo          = EXCLUDED.hash_riesgo,
		    compliance_timestamp = EXCLUDED.compliance_timestamp,
		    cumplimiento         = EXCLUDED.cumplimiento,
		    hash_compliance      = EXCLUDED.hash_compliance,
		    timestamp_final      = EXCLUDED.timestamp_final,
		    hash_final           = EXCLUDED.hash_final,
		    hitl_required        = EXCLUDED.hitl_required,
		    hitl_reason          = EXCLUDED.hitl_reason,
		    updated_at           = now()`,
		exec.RequestID, exec.Status,
		exec.IngestTimestamp, nullable(exec.HashIngest),
		exec.RiskTimestamp, nullable(string(exec.Riesgo)), nullable(exec.HashRiesgo),
		exec.ComplianceTimestamp, exec.Cumplimiento, nullable(exec.HashCompliance),
		exec.FinalTimestamp, nullable(exec.HashFinal),
		exec.HITLRequired, nullable(exec.HITLReason))
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetExecution retrieves the workflow execution for a request.
func (r *PostgresRepository) GetExecution(ctx context.Context, requestID string) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	var hashIngest, riesgo, hashRiesgo, hashCompliance, hashFinal *string
	var hitlReason, hitlDecision, hitlReviewer, hitlNotes *string
	err := r.db.QueryRow(ctx, `
		SELECT request_id, status,
		       ingest_timestamp, hash_ingest,
		       risk_timestamp, riesgo, hash_riesgo,
		       compliance_timestamp, cumplimiento, hash_compliance,
		       timestamp_final, hash_final,
		       hitl_required, hitl_reason, hitl_decision, hitl_reviewer, hitl_reviewed_at, hitl_notes,
		       created_at, updated_at
		FROM workflow_executions WHERE request_id = $1`, requestID).
		Scan(&exec.RequestID, &exec.Status,
			&exec.IngestTimestamp, &hashIngest,
			&exec.RiskTimestamp, &riesgo, &hashRiesgo,
			&exec.ComplianceTimestamp, &exec.Cumplimiento, &hashCompliance,
			&exec.FinalTimestamp, &hashFinal,
			&exec.HITLRequired, &hitlReason, &hitlDecision, &hitlReviewer, &exec.HITLReviewedAt, &hitlNotes,
			&exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	exec.HashIngest = deref(hashIngest)
	exec.Riesgo = models.RiskLevel(deref(riesgo))
	exec.HashRiesgo = deref(hashRiesgo)
	exec.HashCompliance = deref(hashCompliance)
	exec.HashFinal = deref(hashFinal)
	exec.HITLReason = deref(hitlReason)
	exec.HITLReviewer = deref(hitlReviewer)
	exec.HITLNotes = deref(hitlNotes)
	if hitlDecision != nil {
		d := models.HITLDecision(*hitlDecision)
		exec.HITLDecision = &d
	}
	return &exec, nil
}

// CreateCertificate issues the certificate for a request. A request that
// already holds a certificate keeps it: the insert is a no-op and the
// stored row is returned unchanged.
func (r *PostgresRepository) CreateCertificate(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO certificates (certificado_id, request_id, hash_final, firma_digital, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id) DO NOTHING`,
		cert.CertificadoID, cert.RequestID, cert.HashFinal, nullable(cert.FirmaDigital), cert.IssuedAt)
	if err != nil {
		return nil, translate(err)
	}
	return r.GetCertificateByRequest(ctx, cert.RequestID)
}

// GetCertificate retrieves a certificate by its certificado_id.
func (r *PostgresRepository) GetCertificate(ctx context.Context, certificadoID string) (*models.Certificate, error) {
	return r.getCertificate(ctx, "certificado_id", certificadoID)
}

// GetCertificateByRequest retrieves the certificate owned by a request.
func (r *PostgresRepository) GetCertificateByRequest(ctx context.Context, requestID string) (*models.Certificate, error) {
	return r.getCertificate(ctx, "request_id", requestID)
}

func (r *PostgresRepository) getCertificate(ctx context.Context, column, key string) (*models.Certificate, error) {
	var cert models.Certificate
	var firma *string
	err := r.db.QueryRow(ctx,
		`SELECT certificado_id, request_id, hash_final, firma_digital, issued_at FROM certificates WHERE `+column+` = $1`, key).
		Scan(&cert.CertificadoID, &cert.RequestID, &cert.HashFinal, &firma, &cert.IssuedAt)
	if err != nil {
		return nil, translate(err)
	}
	cert.FirmaDigital = deref(firma)
	return &cert, nil
}

// ApplyHITLDecision performs the guarded decision update. The WHERE clause
// on hitl_decision IS NULL is the compare-and-swap: under concurrent
// submissions for the same case exactly one UPDATE matches a row.
func (r *PostgresRepository) ApplyHITLDecision(ctx context.Context, requestID string, decision models.HITLDecision, reviewer, notes string, newStatus models.RequestStatus) (*models.DecisionResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback(ctx)

	var tag pgconn.CommandTag
	if decision == models.DecisionEscalate {
		// Re-queue: the decision column stays NULL so the case can be
		// reviewed again; the audit log carries reviewer and notes.
		tag, err = tx.Exec(ctx, `
			UPDATE workflow_executions SET updated_at = now()
			WHERE request_id = $1 AND hitl_required AND hitl_decision IS NULL`,
			requestID)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE workflow_executions
			SET hitl_decision = $2, hitl_reviewer = $3, hitl_reviewed_at = now(),
			    hitl_notes = $4, status = $5, updated_at = now()
			WHERE request_id = $1 AND hitl_required AND hitl_decision IS NULL`,
			requestID, decision, reviewer, nullable(notes), newStatus)
	}
	if err != nil {
		return nil, translate(err)
	}

	if tag.RowsAffected() == 0 {
		// Guard failed: distinguish a decided case from a missing one.
		var decided *string
		err := tx.QueryRow(ctx,
			`SELECT hitl_decision FROM workflow_executions WHERE request_id = $1 AND hitl_required`,
			requestID).Scan(&decided)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		if err != nil {
			return nil, translate(err)
		}
		return nil, models.ErrAlreadyDecided
	}

	if decision != models.DecisionEscalate {
		if _, err := tx.Exec(ctx,
			`UPDATE requests SET status = $2, updated_at = now() WHERE request_id = $1`,
			requestID, newStatus); err != nil {
			return nil, translate(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err)
	}

	result := &models.DecisionResult{
		RequestID: requestID,
		Decision:  decision,
		NewStatus: newStatus,
	}
	if decision == models.DecisionEscalate {
		// No review columns were written; the re-queue is the outcome.
		result.Requeued = true
	} else {
		result.ReviewedBy = reviewer
		result.ReviewedAt = time.Now().UTC()
	}
	return result, nil
}

// ListPendingHITL pages the review queue. The ORDER BY implements the
// two-key total order: risk severity first (ALTO, MEDIO, BAJO), oldest case
// first within a severity.
func (r *PostgresRepository) ListPendingHITL(ctx context.Context, limit, offset int) (*models.PendingCases, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.request_id, r.proveedor_rut, r.proveedor_nombre, r.monto_contrato, r.objeto_contrato,
		       w.riesgo, w.hitl_reason, w.created_at
		FROM workflow_executions w
		JOIN requests r ON w.request_id = r.request_id
		WHERE w.hitl_required AND w.hitl_decision IS NULL AND w.status = 'hitl_required'
		ORDER BY
			CASE w.riesgo
				WHEN 'ALTO' THEN 1
				WHEN 'MEDIO' THEN 2
				WHEN 'BAJO' THEN 3
				ELSE 4
			END,
			w.created_at ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var cases []models.HITLCase
	for rows.Next() {
		var c models.HITLCase
		var nombre, objeto, reason *string
		var monto *float64
		if err := rows.Scan(&c.RequestID, &c.ProveedorRUT, &nombre, &monto, &objeto, &c.Riesgo, &reason, &c.CreatedAt); err != nil {
			return nil, translate(err)
		}
		c.ProveedorNombre = deref(nombre)
		c.ObjetoContrato = deref(objeto)
		c.HITLReason = deref(reason)
		if monto != nil {
			c.MontoContrato = *monto
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	var total int
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM workflow_executions
		WHERE hitl_required AND hitl_decision IS NULL AND status = 'hitl_required'`).Scan(&total)
	if err != nil {
		return nil, translate(err)
	}

	return &models.PendingCases{Count: len(cases), Total: total, Cases: cases}, nil
}

// AppendAuditEvent writes one append-only audit log entry.
func (r *PostgresRepository) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_log (request_id, event_type, actor, details, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		event.RequestID, event.EventType, nullable(event.Actor), event.Details, ts)
	if err != nil {
		return translate(err)
	}
	return nil
}

// ListAuditEvents returns the audit log for a request, oldest first.
func (r *PostgresRepository) ListAuditEvents(ctx context.Context, requestID string) ([]models.AuditEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT request_id, event_type, actor, details, timestamp
		FROM audit_log WHERE request_id = $1 ORDER BY timestamp ASC, id ASC`, requestID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var actor *string
		if err := rows.Scan(&e.RequestID, &e.EventType, &actor, &e.Details, &e.Timestamp); err != nil {
			return nil, translate(err)
		}
		e.Actor = deref(actor)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return events, nil
}

// HITLStatistics aggregates decision counts and mean review latency for
// cases created within the trailing window. Escalations leave no decision
// column behind, so they are counted from the audit log.
func (r *PostgresRepository) HITLStatistics(ctx context.Context, window time.Duration) (*models.HITLStatistics, error) {
	var stats models.HITLStatistics
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE hitl_required),
			COUNT(*) FILTER (WHERE hitl_required AND hitl_decision IS NULL),
			COUNT(*) FILTER (WHERE hitl_decision = 'approve'),
			COUNT(*) FILTER (WHERE hitl_decision = 'reject'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (hitl_reviewed_at - created_at)) / 3600)
				FILTER (WHERE hitl_reviewed_at IS NOT NULL), 0)
		FROM workflow_executions
		WHERE created_at > now() - $1::interval`, window).
		Scan(&stats.TotalCases, &stats.Pending, &stats.Approved, &stats.Rejected, &stats.AvgReviewTimeHours)
	if err != nil {
		return nil, translate(err)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE event_type = $1 AND timestamp > now() - $2::interval`,
		"HITL_DECISION_ESCALATE", window).Scan(&stats.Escalated)
	if err != nil {
		return nil, translate(err)
	}
	return &stats, nil
}
