// Package hitl manages cases escalated for human review.
package hitl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/pkg/models"
)

// StatisticsWindow is the trailing window over which decision statistics
// are aggregated.
const StatisticsWindow = 30 * 24 * time.Hour

// Coordinator owns the transition of escalated cases from pending to
// decided. The at-most-once guarantee lives in the repository's guarded
// update; the coordinator validates the decision, maps it to a status
// transition, and records the audit event.
type Coordinator struct {
	repo   repository.Repository
	logger *logging.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(repo repository.Repository, logger *logging.Logger) *Coordinator {
	return &Coordinator{repo: repo, logger: logger}
}

// ListPending returns the review queue page: ALTO before MEDIO before
// BAJO, oldest first within a severity.
func (c *Coordinator) ListPending(ctx context.Context, limit, offset int) (*models.PendingCases, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return c.repo.ListPendingHITL(ctx, limit, offset)
}

// GetCaseDetail returns the full projection of an escalated case with its
// audit history.
func (c *Coordinator) GetCaseDetail(ctx context.Context, requestID string) (*models.CaseDetail, error) {
	exec, err := c.repo.GetExecution(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !exec.HITLRequired {
		return nil, fmt.Errorf("%w: request %s was never escalated", models.ErrNotFound, requestID)
	}

	req, err := c.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	events, err := c.repo.ListAuditEvents(ctx, requestID)
	if err != nil {
		return nil, err
	}

	return &models.CaseDetail{Execution: exec, Request: req, AuditTrail: events}, nil
}

// SubmitDecision applies a reviewer's decision to a pending case.
// approve completes the request, reject fails it, escalate re-queues it
// with the decision column left empty. Exactly one decision ever lands on
// a case; later submissions fail with ErrAlreadyDecided.
func (c *Coordinator) SubmitDecision(ctx context.Context, requestID string, decision models.HITLDecision, reviewer, notes string) (*models.DecisionResult, error) {
	newStatus, err := statusFor(decision)
	if err != nil {
		return nil, err
	}
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer is required", models.ErrValidation)
	}

	result, err := c.repo.ApplyHITLDecision(ctx, requestID, decision, reviewer, notes, newStatus)
	if err != nil {
		return nil, err
	}

	event := &models.AuditEvent{
		RequestID: requestID,
		EventType: "HITL_DECISION_" + strings.ToUpper(string(decision)),
		Actor:     reviewer,
		Details: map[string]any{
			"decision":   string(decision),
			"new_status": string(newStatus),
			"notes":      notes,
		},
	}
	if err := c.repo.AppendAuditEvent(ctx, event); err != nil {
		// The decision already landed; a lost audit write must not undo it.
		c.logger.Warn("failed to record hitl audit event",
			"request_id", requestID, "decision", string(decision), "error", err)
	}

	c.logger.Info("hitl decision recorded",
		"request_id", requestID, "decision", string(decision), "reviewer", reviewer)
	return result, nil
}

// Statistics aggregates pending/approved/rejected/escalated counts and the
// mean review latency over the trailing window.
func (c *Coordinator) Statistics(ctx context.Context) (*models.HITLStatistics, error) {
	return c.repo.HITLStatistics(ctx, StatisticsWindow)
}

// statusFor maps a decision to the resulting request status. escalate
// keeps the case in hitl_required so it returns to the queue.
func statusFor(decision models.HITLDecision) (models.RequestStatus, error) {
	switch decision {
	case models.DecisionApprove:
		return models.StatusCompleted, nil
	case models.DecisionReject:
		return models.StatusFailed, nil
	case models.DecisionEscalate:
		return models.StatusHITLRequired, nil
	default:
		return "", fmt.Errorf("%w: %q (must be approve, reject, or escalate)", models.ErrInvalidDecision, decision)
	}
}
