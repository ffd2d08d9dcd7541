// Package verify checks the integrity of issued certificates against the
// stored hash chain.
package verify

import (
	"context"
	"errors"

	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/pkg/models"
)

// Verifier reconstructs and checks the hash chain behind a certificate.
// A failed-but-well-formed verification is a normal result, not an error;
// only infrastructure failures propagate.
type Verifier struct {
	repo repository.Repository
}

// NewVerifier creates a Verifier.
func NewVerifier(repo repository.Repository) *Verifier {
	return &Verifier{repo: repo}
}

// Verify looks up the certificate and reports the structured verdict:
// hash_match compares the certificate's stored final hash against the
// owning execution's, chain_complete requires all four stage hashes to be
// present, and valid is their conjunction. The individual hash values are
// included for caller-side inspection.
func (v *Verifier) Verify(ctx context.Context, certificadoID string) (*models.VerificationResult, error) {
	result := &models.VerificationResult{CertificadoID: certificadoID}

	cert, err := v.repo.GetCertificate(ctx, certificadoID)
	if errors.Is(err, models.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Exists = true
	result.CertificateHash = cert.HashFinal
	result.IssuedAt = cert.IssuedAt

	exec, err := v.repo.GetExecution(ctx, cert.RequestID)
	if errors.Is(err, models.ErrNotFound) {
		// Certificate without its owning execution: nothing to match against.
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.HashIngest = exec.HashIngest
	result.HashRiesgo = exec.HashRiesgo
	result.HashCompliance = exec.HashCompliance
	result.HashFinal = exec.HashFinal

	result.HashMatch = exec.HashFinal != "" && cert.HashFinal == exec.HashFinal
	result.ChainComplete = exec.ChainComplete()
	result.Valid = result.HashMatch && result.ChainComplete

	return result, nil
}
