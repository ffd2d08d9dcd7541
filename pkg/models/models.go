// Package models defines the domain models for the certification service
package models

import (
	"time"
)

// RequestStatus represents the lifecycle state of a procurement request.
type RequestStatus string

const (
	StatusProcessing   RequestStatus = "processing"
	StatusHITLRequired RequestStatus = "hitl_required"
	StatusCompleted    RequestStatus = "completed"
	StatusFailed       RequestStatus = "failed"
)

// RiskLevel is the closed set of categories a risk scorer may return.
type RiskLevel string

const (
	RiskBajo  RiskLevel = "BAJO"
	RiskMedio RiskLevel = "MEDIO"
	RiskAlto  RiskLevel = "ALTO"
)

// Priority returns the queue ordering rank for a risk level; lower sorts first.
func (r RiskLevel) Priority() int {
	switch r {
	case RiskAlto:
		return 1
	case RiskMedio:
		return 2
	case RiskBajo:
		return 3
	}
	return 4
}

// HITLDecision is the closed set of decisions a human reviewer may submit.
type HITLDecision string

const (
	DecisionApprove  HITLDecision = "approve"
	DecisionReject   HITLDecision = "reject"
	DecisionEscalate HITLDecision = "escalate"
)

// Audit event types written by the workflow engine and the HITL coordinator.
const (
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowResumed   = "workflow_resumed"
	EventHITLEscalated     = "hitl_escalated"
)

// Request represents a procurement request under certification.
type Request struct {
	RequestID       string        `json:"request_id"`
	ProveedorRUT    string        `json:"proveedor_rut"`
	ProveedorNombre string        `json:"proveedor_nombre,omitempty"`
	MontoContrato   float64       `json:"monto_contrato,omitempty"`
	ObjetoContrato  string        `json:"objeto_contrato,omitempty"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// WorkflowExecution records the chained pipeline run for one request.
// There is exactly one execution per request_id. Stage hashes are populated
// strictly in pipeline order: hash_riesgo never exists without hash_ingest,
// and so on through hash_final.
type WorkflowExecution struct {
	RequestID           string        `json:"request_id"`
	Status              RequestStatus `json:"status"`
	IngestTimestamp     *time.Time    `json:"ingest_timestamp,omitempty"`
	HashIngest          string        `json:"hash_ingest,omitempty"`
	RiskTimestamp       *time.Time    `json:"risk_timestamp,omitempty"`
	Riesgo              RiskLevel     `json:"riesgo,omitempty"`
	HashRiesgo          string        `json:"hash_riesgo,omitempty"`
	ComplianceTimestamp *time.Time    `json:"compliance_timestamp,omitempty"`
	Cumplimiento        *bool         `json:"cumplimiento,omitempty"`
	HashCompliance      string        `json:"hash_compliance,omitempty"`
	FinalTimestamp      *time.Time    `json:"timestamp_final,omitempty"`
	HashFinal           string        `json:"hash_final,omitempty"`

	HITLRequired   bool          `json:"hitl_required"`
	HITLReason     string        `json:"hitl_reason,omitempty"`
	HITLDecision   *HITLDecision `json:"hitl_decision,omitempty"`
	HITLReviewer   string        `json:"hitl_reviewer,omitempty"`
	HITLReviewedAt *time.Time    `json:"hitl_reviewed_at,omitempty"`
	HITLNotes      string        `json:"hitl_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChainComplete reports whether all four stage hashes are present.
func (w *WorkflowExecution) ChainComplete() bool {
	return w.HashIngest != "" && w.HashRiesgo != "" && w.HashCompliance != "" && w.HashFinal != ""
}

// Certificate is the immutable proof artifact issued when a workflow
// reaches the finalize stage. hash_final is copied from the owning
// execution at issuance time; firma_digital is present only when an
// external signer notarized the hash.
type Certificate struct {
	CertificadoID string    `json:"certificado_id"`
	RequestID     string    `json:"request_id"`
	HashFinal     string    `json:"hash_final"`
	FirmaDigital  string    `json:"firma_digital,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

// HITLCase is the queue projection of an escalated execution joined with
// its request, as returned by the pending-cases listing.
type HITLCase struct {
	RequestID       string    `json:"request_id"`
	ProveedorRUT    string    `json:"proveedor_rut"`
	ProveedorNombre string    `json:"proveedor_nombre,omitempty"`
	MontoContrato   float64   `json:"monto_contrato,omitempty"`
	ObjetoContrato  string    `json:"objeto_contrato,omitempty"`
	Riesgo          RiskLevel `json:"riesgo"`
	HITLReason      string    `json:"hitl_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PendingCases is a page of the HITL review queue.
type PendingCases struct {
	Count int        `json:"count"`
	Total int        `json:"total"`
	Cases []HITLCase `json:"pending_cases"`
}

// CaseDetail is the full projection of an escalated case.
type CaseDetail struct {
	Execution  *WorkflowExecution `json:"workflow_execution"`
	Request    *Request           `json:"request"`
	AuditTrail []AuditEvent       `json:"audit_trail"`
}

// DecisionResult reports the outcome of a submitted HITL decision. An
// escalate decision re-queues the case without writing the review columns,
// so Requeued is set and ReviewedBy/ReviewedAt stay zero; the escalating
// reviewer is attributed through the audit log instead.
type DecisionResult struct {
	RequestID  string        `json:"request_id"`
	Decision   HITLDecision  `json:"decision"`
	NewStatus  RequestStatus `json:"new_status"`
	Requeued   bool          `json:"requeued,omitempty"`
	ReviewedBy string        `json:"reviewed_by,omitempty"`
	ReviewedAt time.Time     `json:"reviewed_at,omitzero"`
}

// HITLStatistics aggregates decision counts over a trailing window.
type HITLStatistics struct {
	TotalCases         int     `json:"total_hitl_cases"`
	Pending            int     `json:"pending"`
	Approved           int     `json:"approved"`
	Rejected           int     `json:"rejected"`
	Escalated          int     `json:"escalated"`
	AvgReviewTimeHours float64 `json:"avg_review_time_hours"`
}

// AuditEvent is a single append-only audit log entry. Events are never
// mutated or deleted; ordering is by timestamp.
type AuditEvent struct {
	RequestID string         `json:"request_id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// VerificationResult is the structured verdict of a certificate
// integrity check. HashMatch and ChainComplete are reported separately so
// a caller can tell a tampered final copy from an incomplete pipeline.
type VerificationResult struct {
	CertificadoID   string    `json:"certificado_id"`
	Exists          bool      `json:"exists"`
	Valid           bool      `json:"valid"`
	HashMatch       bool      `json:"hash_match"`
	ChainComplete   bool      `json:"chain_complete"`
	CertificateHash string    `json:"certificate_hash,omitempty"`
	HashIngest      string    `json:"hash_ingest,omitempty"`
	HashRiesgo      string    `json:"hash_riesgo,omitempty"`
	HashCompliance  string    `json:"hash_compliance,omitempty"`
	HashFinal       string    `json:"hash_final,omitempty"`
	IssuedAt        time.Time `json:"issued_at,omitempty"`
}

// TrailEntry is one step in a reconstructed audit trail.
type TrailEntry struct {
	Stage     string     `json:"stage"`
	Status    string     `json:"status"`
	Hash      string     `json:"hash,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TrailSummary holds derived rollups over a trail.
type TrailSummary struct {
	TotalStages     int           `json:"total_etapas"`
	TotalEvents     int           `json:"total_eventos"`
	CurrentStatus   RequestStatus `json:"estado_actual"`
	Completed       bool          `json:"completado"`
	DurationSeconds float64       `json:"duracion_segundos,omitempty"`
}

// TrailIntegrity is the weak chain-presence signal reported with a trail.
// It only checks that hashes are present; strict verification lives with
// the integrity verifier.
type TrailIntegrity struct {
	HashesComplete bool `json:"hashes_completos"`
	TotalHashes    int  `json:"total_hashes"`
	ChainIntact    bool `json:"cadena_intacta"`
}

// AuditTrail is the human-readable timeline for one request.
type AuditTrail struct {
	RequestID string         `json:"request_id"`
	Stages    []TrailEntry   `json:"workflow_stages"`
	Events    []AuditEvent   `json:"audit_events"`
	Summary   TrailSummary   `json:"resumen"`
	Integrity TrailIntegrity `json:"integridad"`
}
