package models

import "time"

// WorkflowInput is the caller-supplied payload that starts a certification
// workflow.
type WorkflowInput struct {
	RequestID       string  `json:"request_id"`
	ProveedorRUT    string  `json:"proveedor_rut"`
	ProveedorNombre string  `json:"proveedor_nombre,omitempty"`
	MontoContrato   float64 `json:"monto_contrato,omitempty"`
	ObjetoContrato  string  `json:"objeto_contrato,omitempty"`
}

// WorkflowState is the cumulative pipeline state threaded through the
// stages. Each stage fills in its own fields and never touches later ones;
// optional fields stay nil/zero until their stage runs. The state map the
// hash chain fingerprints is derived from the populated fields only.
type WorkflowState struct {
	RequestID       string
	ProveedorRUT    string
	ProveedorNombre string
	MontoContrato   float64
	ObjetoContrato  string

	IngestTimestamp *time.Time
	HashIngest      string

	Riesgo     RiskLevel
	HashRiesgo string

	Cumplimiento   *bool
	HashCompliance string

	CertificadoID  string
	FinalTimestamp *time.Time
	HashFinal      string

	HITLRequired bool
	HITLReason   string
	Status       RequestStatus
}

// WorkflowResult is returned to the caller of a workflow run. When the
// store degraded during the run, Degraded is true and the result may exist
// only in memory.
type WorkflowResult struct {
	RequestID      string        `json:"request_id"`
	Status         RequestStatus `json:"status"`
	Riesgo         RiskLevel     `json:"riesgo,omitempty"`
	Cumplimiento   *bool         `json:"cumplimiento,omitempty"`
	Certificate    *Certificate  `json:"certificado,omitempty"`
	HashIngest     string        `json:"hash_ingest,omitempty"`
	HashRiesgo     string        `json:"hash_riesgo,omitempty"`
	HashCompliance string        `json:"hash_compliance,omitempty"`
	HashFinal      string        `json:"hash_final,omitempty"`
	HITLRequired   bool          `json:"hitl_required"`
	HITLReason     string        `json:"hitl_reason,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`
	SignerError    string        `json:"signer_error,omitempty"`
}
