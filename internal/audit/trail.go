// Package audit assembles human-readable timelines from stored stage
// hashes and raw audit events.
package audit

import (
	"context"
	"errors"
	"time"

	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/pkg/models"
)

// TrailBuilder is the read-only path that derives a request's timeline
// from its workflow execution, certificate, and audit log.
type TrailBuilder struct {
	repo repository.Repository
}

// NewTrailBuilder creates a TrailBuilder.
func NewTrailBuilder(repo repository.Repository) *TrailBuilder {
	return &TrailBuilder{repo: repo}
}

// Build returns the ordered trail for a request: one stage entry per
// populated chain hash, a certification entry when a certificate exists,
// and the raw audit events oldest first. The integrity block is the weak
// presence signal only; strict verification belongs to the verifier.
func (b *TrailBuilder) Build(ctx context.Context, requestID string) (*models.AuditTrail, error) {
	exec, err := b.repo.GetExecution(ctx, requestID)
	if err != nil {
		return nil, err
	}

	trail := &models.AuditTrail{RequestID: requestID}
	trail.Stages = stageEntries(exec)

	cert, err := b.repo.GetCertificateByRequest(ctx, requestID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if cert != nil {
		issued := cert.IssuedAt
		trail.Stages = append(trail.Stages, models.TrailEntry{
			Stage:     "certification",
			Status:    "issued",
			Hash:      cert.HashFinal,
			Timestamp: &issued,
		})
	}

	events, err := b.repo.ListAuditEvents(ctx, requestID)
	if err != nil {
		return nil, err
	}
	trail.Events = events

	hashes := 0
	for _, h := range []string{exec.HashIngest, exec.HashRiesgo, exec.HashCompliance, exec.HashFinal} {
		if h != "" {
			hashes++
		}
	}
	trail.Integrity = models.TrailIntegrity{
		HashesComplete: hashes >= 4,
		TotalHashes:    hashes,
		ChainIntact:    hashes > 0,
	}

	trail.Summary = models.TrailSummary{
		TotalStages:   len(trail.Stages),
		TotalEvents:   len(events),
		CurrentStatus: exec.Status,
		Completed:     exec.Status == models.StatusCompleted,
	}
	if exec.IngestTimestamp != nil && exec.FinalTimestamp != nil {
		trail.Summary.DurationSeconds = exec.FinalTimestamp.Sub(*exec.IngestTimestamp).Seconds()
	}

	return trail, nil
}

// stageEntries emits one entry per populated stage hash, in pipeline order.
func stageEntries(exec *models.WorkflowExecution) []models.TrailEntry {
	type stage struct {
		name string
		hash string
		ts   *time.Time
	}
	stages := []stage{
		{"ingest", exec.HashIngest, exec.IngestTimestamp},
		{"risk_assessment", exec.HashRiesgo, exec.RiskTimestamp},
		{"compliance_check", exec.HashCompliance, exec.ComplianceTimestamp},
		{"finalize", exec.HashFinal, exec.FinalTimestamp},
	}

	var entries []models.TrailEntry
	for _, s := range stages {
		if s.hash == "" {
			continue
		}
		entries = append(entries, models.TrailEntry{
			Stage:     s.name,
			Status:    "completed",
			Hash:      s.hash,
			Timestamp: s.ts,
		})
	}
	return entries
}
