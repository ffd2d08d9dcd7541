package hashchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantransparency/backend/pkg/models"
)

func sampleState() *models.WorkflowState {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &models.WorkflowState{
		RequestID:       "R1",
		ProveedorRUT:    "76543210",
		ProveedorNombre: "Constructora Sur SpA",
		MontoContrato:   1_000_000,
		IngestTimestamp: &ts,
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(sampleState())
	b := Fingerprint(sampleState())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base := Fingerprint(sampleState())

	mutated := sampleState()
	mutated.MontoContrato = 1_000_001
	assert.NotEqual(t, base, Fingerprint(mutated))

	mutated = sampleState()
	mutated.ProveedorRUT = "76543211"
	assert.NotEqual(t, base, Fingerprint(mutated))
}

func TestFingerprintIgnoresTimezoneRendering(t *testing.T) {
	utc := sampleState()

	santiago := sampleState()
	loc := time.FixedZone("CLT", -4*3600)
	local := utc.IngestTimestamp.In(loc)
	santiago.IngestTimestamp = &local

	assert.Equal(t, Fingerprint(utc), Fingerprint(santiago))
}

// Hashing the state inclusive of prior stage hashes chains the digests:
// tampering with an early field must ripple through every later hash.
func TestChainPropagation(t *testing.T) {
	state := sampleState()
	state.HashIngest = Fingerprint(state)

	state.Riesgo = models.RiskBajo
	state.HashRiesgo = Fingerprint(state)

	cumplimiento := true
	state.Cumplimiento = &cumplimiento
	state.HashCompliance = Fingerprint(state)

	state.CertificadoID = "CERT-0123456789"
	state.HashFinal = Fingerprint(state)

	require.NotEqual(t, state.HashIngest, state.HashRiesgo)
	require.NotEqual(t, state.HashRiesgo, state.HashCompliance)

	// Rebuild the chain from a tampered ingest field.
	tampered := sampleState()
	tampered.ProveedorRUT = "99999999"
	tampered.HashIngest = Fingerprint(tampered)
	tampered.Riesgo = models.RiskBajo
	tampered.HashRiesgo = Fingerprint(tampered)
	tampered.Cumplimiento = &cumplimiento
	tampered.HashCompliance = Fingerprint(tampered)
	tampered.CertificadoID = "CERT-0123456789"
	tampered.HashFinal = Fingerprint(tampered)

	assert.NotEqual(t, state.HashFinal, tampered.HashFinal)
}

// Recomputing the final fingerprint from the stored final state must
// reproduce the stored hash_final exactly.
func TestFinalHashReproducible(t *testing.T) {
	state := sampleState()
	state.HashIngest = Fingerprint(state)
	state.Riesgo = models.RiskMedio
	state.HashRiesgo = Fingerprint(state)
	ok := true
	state.Cumplimiento = &ok
	state.HashCompliance = Fingerprint(state)
	state.CertificadoID = "CERT-abcdef0123"
	final := time.Date(2025, 3, 14, 9, 27, 0, 0, time.UTC)
	state.FinalTimestamp = &final
	stored := Fingerprint(state)
	state.HashFinal = stored

	// Drop the stored value and recompute from the rest of the final state.
	state.HashFinal = ""
	assert.Equal(t, stored, Fingerprint(state))
}
