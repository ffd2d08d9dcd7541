package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/pkg/models"
)

// seedCompleted stores a fully chained execution and its certificate,
// returning the certificate id.
func seedCompleted(t *testing.T, repo repository.Repository, requestID string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertRequest(ctx, &models.Request{
		RequestID:    requestID,
		ProveedorRUT: "76543210",
		Status:       models.StatusCompleted,
	}))
	ok := true
	ts := time.Now().UTC()
	require.NoError(t, repo.SaveExecution(ctx, &models.WorkflowExecution{
		RequestID:       requestID,
		Status:          models.StatusCompleted,
		IngestTimestamp: &ts,
		HashIngest:      "h1",
		Riesgo:          models.RiskBajo,
		HashRiesgo:      "h2",
		Cumplimiento:    &ok,
		HashCompliance:  "h3",
		FinalTimestamp:  &ts,
		HashFinal:       "h4",
	}))
	cert, err := repo.CreateCertificate(ctx, &models.Certificate{
		CertificadoID: "CERT-" + requestID,
		RequestID:     requestID,
		HashFinal:     "h4",
		IssuedAt:      ts,
	})
	require.NoError(t, err)
	return cert.CertificadoID
}

func TestVerifyValid(t *testing.T) {
	repo := repository.NewMemoryRepository()
	certID := seedCompleted(t, repo, "R1")

	result, err := NewVerifier(repo).Verify(context.Background(), certID)
	require.NoError(t, err)

	assert.True(t, result.Exists)
	assert.True(t, result.HashMatch)
	assert.True(t, result.ChainComplete)
	assert.True(t, result.Valid)
	assert.Equal(t, "h4", result.CertificateHash)
	assert.Equal(t, "h1", result.HashIngest)
}

func TestVerifyMissingCertificate(t *testing.T) {
	result, err := NewVerifier(repository.NewMemoryRepository()).Verify(context.Background(), "CERT-0000000000")
	require.NoError(t, err)
	assert.False(t, result.Exists)
	assert.False(t, result.Valid)
}

// A tampered execution hash must fail hash_match while the chain itself is
// still complete, so the caller can tell tampering from truncation.
func TestVerifyTamperedFinalHash(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	certID := seedCompleted(t, repo, "R1")

	exec, err := repo.GetExecution(ctx, "R1")
	require.NoError(t, err)
	exec.HashFinal = "tampered"
	require.NoError(t, repo.SaveExecution(ctx, exec))

	result, err := NewVerifier(repo).Verify(ctx, certID)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.False(t, result.HashMatch)
	assert.True(t, result.ChainComplete)
	assert.False(t, result.Valid)
}

func TestVerifyIncompleteChain(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	certID := seedCompleted(t, repo, "R1")

	exec, err := repo.GetExecution(ctx, "R1")
	require.NoError(t, err)
	exec.HashCompliance = ""
	require.NoError(t, repo.SaveExecution(ctx, exec))

	result, err := NewVerifier(repo).Verify(ctx, certID)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.True(t, result.HashMatch)
	assert.False(t, result.ChainComplete)
	assert.False(t, result.Valid)
}
