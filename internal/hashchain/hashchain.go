// Package hashchain computes the chained fingerprint over workflow state.
//
// Canonical form: the populated state fields are projected into a
// map[string]any under fixed snake_case keys, timestamps rendered as UTC
// RFC3339Nano strings and amounts as JSON numbers, and the map is encoded
// with encoding/json — which writes map keys in sorted order — before being
// hashed with SHA-256. Unset fields are omitted entirely, so two states
// with the same populated fields always produce the same digest, regardless
// of which stage produced them or on which run.
//
// Each stage hashes the state inclusive of all prior stage hashes, so the
// digests are transitively chained: mutating any earlier field changes
// every subsequent stage's hash.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"cleantransparency/backend/pkg/models"
)

// Fingerprint returns the 64-character hex SHA-256 digest of the canonical
// serialization of the populated fields of state.
func Fingerprint(state *models.WorkflowState) string {
	payload := stateMap(state)
	// json.Marshal of a map never fails for these value types.
	canonical, _ := json.Marshal(payload)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// stateMap projects the populated fields of state under their canonical keys.
func stateMap(state *models.WorkflowState) map[string]any {
	m := map[string]any{
		"request_id":    state.RequestID,
		"proveedor_rut": state.ProveedorRUT,
	}
	if state.ProveedorNombre != "" {
		m["proveedor_nombre"] = state.ProveedorNombre
	}
	if state.MontoContrato != 0 {
		m["monto_contrato"] = state.MontoContrato
	}
	if state.ObjetoContrato != "" {
		m["objeto_contrato"] = state.ObjetoContrato
	}
	if state.IngestTimestamp != nil {
		m["ingest_timestamp"] = canonicalTime(*state.IngestTimestamp)
	}
	if state.HashIngest != "" {
		m["hash_ingest"] = state.HashIngest
	}
	if state.Riesgo != "" {
		m["riesgo"] = string(state.Riesgo)
	}
	if state.HashRiesgo != "" {
		m["hash_riesgo"] = state.HashRiesgo
	}
	if state.Cumplimiento != nil {
		m["cumplimiento"] = *state.Cumplimiento
	}
	if state.HashCompliance != "" {
		m["hash_compliance"] = state.HashCompliance
	}
	if state.CertificadoID != "" {
		m["certificado_id"] = state.CertificadoID
	}
	if state.FinalTimestamp != nil {
		m["timestamp_final"] = canonicalTime(*state.FinalTimestamp)
	}
	if state.HashFinal != "" {
		m["hash_final"] = state.HashFinal
	}
	return m
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
