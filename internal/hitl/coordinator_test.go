package hitl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/pkg/models"
)

func newCoordinator(repo repository.Repository) *Coordinator {
	return NewCoordinator(repo, logging.NewLogger())
}

// seedCase stores an escalated execution plus its request.
func seedCase(t *testing.T, repo repository.Repository, requestID string, riesgo models.RiskLevel) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertRequest(ctx, &models.Request{
		RequestID:    requestID,
		ProveedorRUT: "76543211",
		Status:       models.StatusHITLRequired,
	}))
	ts := time.Now().UTC()
	require.NoError(t, repo.SaveExecution(ctx, &models.WorkflowExecution{
		RequestID:       requestID,
		Status:          models.StatusHITLRequired,
		IngestTimestamp: &ts,
		HashIngest:      "aa",
		RiskTimestamp:   &ts,
		Riesgo:          riesgo,
		HashRiesgo:      "bb",
		HITLRequired:    true,
		HITLReason:      "risk level requires human review",
	}))
}

func TestSubmitDecisionValidation(t *testing.T) {
	c := newCoordinator(repository.NewMemoryRepository())

	_, err := c.SubmitDecision(context.Background(), "R1", "maybe", "rev", "")
	assert.ErrorIs(t, err, models.ErrInvalidDecision)

	_, err = c.SubmitDecision(context.Background(), "R1", models.DecisionApprove, "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmitDecisionNotFound(t *testing.T) {
	c := newCoordinator(repository.NewMemoryRepository())
	_, err := c.SubmitDecision(context.Background(), "missing", models.DecisionApprove, "rev", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmitDecisionApprove(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	seedCase(t, repo, "R1", models.RiskAlto)
	c := newCoordinator(repo)

	result, err := c.SubmitDecision(ctx, "R1", models.DecisionApprove, "ana@contraloria.cl", "ok")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.NewStatus)

	req, err := repo.GetRequest(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, req.Status)

	events, err := repo.ListAuditEvents(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "HITL_DECISION_APPROVE", events[0].EventType)
	assert.Equal(t, "ana@contraloria.cl", events[0].Actor)

	// Second decision loses the guard.
	_, err = c.SubmitDecision(ctx, "R1", models.DecisionReject, "ana@contraloria.cl", "")
	assert.ErrorIs(t, err, models.ErrAlreadyDecided)
}

func TestSubmitDecisionReject(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	seedCase(t, repo, "R1", models.RiskAlto)
	c := newCoordinator(repo)

	result, err := c.SubmitDecision(ctx, "R1", models.DecisionReject, "ana@contraloria.cl", "antecedentes incompletos")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.NewStatus)

	req, err := repo.GetRequest(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, req.Status)
}

// escalate re-queues the case: the decision column stays empty so the case
// can be reviewed again, and only the audit event records the outcome.
func TestSubmitDecisionEscalateRequeues(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	seedCase(t, repo, "R1", models.RiskAlto)
	c := newCoordinator(repo)

	result, err := c.SubmitDecision(ctx, "R1", models.DecisionEscalate, "ana@contraloria.cl", "needs legal opinion")
	require.NoError(t, err)
	assert.True(t, result.Requeued)
	assert.Empty(t, result.ReviewedBy)
	assert.True(t, result.ReviewedAt.IsZero())

	pending, err := c.ListPending(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, pending.Total)
	assert.Equal(t, "R1", pending.Cases[0].RequestID)

	events, err := repo.ListAuditEvents(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "HITL_DECISION_ESCALATE", events[0].EventType)

	// Still decidable after the escalation.
	_, err = c.SubmitDecision(ctx, "R1", models.DecisionApprove, "jefe@contraloria.cl", "")
	require.NoError(t, err)
}

// Concurrent submissions on the same pending case produce exactly one
// winner; every loser sees ErrAlreadyDecided.
func TestSubmitDecisionConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	seedCase(t, repo, "R1", models.RiskAlto)
	c := newCoordinator(repo)

	decisions := []models.HITLDecision{models.DecisionApprove, models.DecisionReject}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d models.HITLDecision) {
			defer wg.Done()
			_, errs[i] = c.SubmitDecision(ctx, "R1", d, "rev", "")
		}(i, d)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, models.ErrAlreadyDecided)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestListPendingOrdering(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()

	seedCase(t, repo, "bajo-1", models.RiskBajo)
	time.Sleep(time.Millisecond)
	seedCase(t, repo, "medio-1", models.RiskMedio)
	time.Sleep(time.Millisecond)
	seedCase(t, repo, "alto-2", models.RiskAlto)
	time.Sleep(time.Millisecond)
	seedCase(t, repo, "medio-2", models.RiskMedio)

	c := newCoordinator(repo)
	pending, err := c.ListPending(ctx, 10, 0)
	require.NoError(t, err)

	var order []string
	for _, pc := range pending.Cases {
		order = append(order, pc.RequestID)
	}
	assert.Equal(t, []string{"alto-2", "medio-1", "medio-2", "bajo-1"}, order)
}

func TestGetCaseDetail(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	seedCase(t, repo, "R1", models.RiskAlto)
	require.NoError(t, repo.AppendAuditEvent(ctx, &models.AuditEvent{
		RequestID: "R1",
		EventType: models.EventHITLEscalated,
		Actor:     "workflow-engine",
	}))
	c := newCoordinator(repo)

	detail, err := c.GetCaseDetail(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", detail.Execution.RequestID)
	assert.Equal(t, "76543211", detail.Request.ProveedorRUT)
	require.Len(t, detail.AuditTrail, 1)

	_, err = c.GetCaseDetail(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetCaseDetailNeverEscalated(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.UpsertRequest(ctx, &models.Request{RequestID: "R1", ProveedorRUT: "1", Status: models.StatusProcessing}))
	require.NoError(t, repo.SaveExecution(ctx, &models.WorkflowExecution{RequestID: "R1", Status: models.StatusProcessing}))

	_, err := newCoordinator(repo).GetCaseDetail(ctx, "R1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := newCoordinator(repo)

	seedCase(t, repo, "a", models.RiskAlto)
	seedCase(t, repo, "b", models.RiskAlto)
	seedCase(t, repo, "c", models.RiskMedio)

	_, err := c.SubmitDecision(ctx, "a", models.DecisionApprove, "rev", "")
	require.NoError(t, err)
	_, err = c.SubmitDecision(ctx, "b", models.DecisionReject, "rev", "")
	require.NoError(t, err)
	_, err = c.SubmitDecision(ctx, "c", models.DecisionEscalate, "rev", "")
	require.NoError(t, err)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCases)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Escalated)
}
