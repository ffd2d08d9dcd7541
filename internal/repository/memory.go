package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cleantransparency/backend/pkg/models"
)

// MemoryRepository is an in-memory implementation of the Repository
// interface. It mirrors the Postgres adapter's semantics — guarded HITL
// updates, queue ordering, append-only audit log — and backs unit tests and
// storeless development runs.
type MemoryRepository struct {
	mu           sync.Mutex
	requests     map[string]*models.Request
	executions   map[string]*models.WorkflowExecution
	certificates map[string]*models.Certificate // keyed by request_id
	events       []models.AuditEvent
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests:     make(map[string]*models.Request),
		executions:   make(map[string]*models.WorkflowExecution),
		certificates: make(map[string]*models.Certificate),
	}
}

func (m *MemoryRepository) UpsertRequest(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.requests[req.RequestID]; ok {
		existing.ProveedorRUT = req.ProveedorRUT
		existing.ProveedorNombre = req.ProveedorNombre
		existing.MontoContrato = req.MontoContrato
		existing.ObjetoContrato = req.ObjetoContrato
		existing.Status = req.Status
		existing.UpdatedAt = now
		return nil
	}
	stored := *req
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.requests[req.RequestID] = &stored
	return nil
}

func (m *MemoryRepository) GetRequest(_ context.Context, requestID string) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *MemoryRepository) UpdateRequestStatus(_ context.Context, requestID string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return models.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) SaveExecution(_ context.Context, exec *models.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.executions[exec.RequestID]; ok {
		// Decision bookkeeping is owned by ApplyHITLDecision and survives
		// re-saves of the stage fields.
		decision, reviewer, reviewedAt, notes := existing.HITLDecision, existing.HITLReviewer, existing.HITLReviewedAt, existing.HITLNotes
		created := existing.CreatedAt
		stored := *exec
		stored.HITLDecision = decision
		stored.HITLReviewer = reviewer
		stored.HITLReviewedAt = reviewedAt
		stored.HITLNotes = notes
		stored.CreatedAt = created
		stored.UpdatedAt = now
		m.executions[exec.RequestID] = &stored
		return nil
	}
	stored := *exec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.executions[exec.RequestID] = &stored
	return nil
}

func (m *MemoryRepository) GetExecution(_ context.Context, requestID string) (*models.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[requestID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *exec
	return &cp, nil
}

func (m *MemoryRepository) CreateCertificate(_ context.Context, cert *models.Certificate) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.certificates[cert.RequestID]; ok {
		cp := *existing
		return &cp, nil
	}
	stored := *cert
	if stored.IssuedAt.IsZero() {
		stored.IssuedAt = time.Now().UTC()
	}
	m.certificates[cert.RequestID] = &stored
	cp := stored
	return &cp, nil
}

func (m *MemoryRepository) GetCertificate(_ context.Context, certificadoID string) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cert := range m.certificates {
		if cert.CertificadoID == certificadoID {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryRepository) GetCertificateByRequest(_ context.Context, requestID string) (*models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cert, ok := m.certificates[requestID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

func (m *MemoryRepository) ApplyHITLDecision(_ context.Context, requestID string, decision models.HITLDecision, reviewer, notes string, newStatus models.RequestStatus) (*models.DecisionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[requestID]
	if !ok || !exec.HITLRequired {
		return nil, models.ErrNotFound
	}
	// The guard: only one decision ever lands on a case.
	if exec.HITLDecision != nil {
		return nil, models.ErrAlreadyDecided
	}

	now := time.Now().UTC()
	result := &models.DecisionResult{
		RequestID: requestID,
		Decision:  decision,
		NewStatus: newStatus,
	}
	if decision == models.DecisionEscalate {
		// No review columns are written; the re-queue is the outcome.
		result.Requeued = true
	} else {
		d := decision
		exec.HITLDecision = &d
		exec.HITLReviewer = reviewer
		exec.HITLReviewedAt = &now
		exec.HITLNotes = notes
		exec.Status = newStatus
		if req, ok := m.requests[requestID]; ok {
			req.Status = newStatus
			req.UpdatedAt = now
		}
		result.ReviewedBy = reviewer
		result.ReviewedAt = now
	}
	exec.UpdatedAt = now

	return result, nil
}

func (m *MemoryRepository) ListPendingHITL(_ context.Context, limit, offset int) (*models.PendingCases, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []models.HITLCase
	for _, exec := range m.executions {
		if !exec.HITLRequired || exec.HITLDecision != nil || exec.Status != models.StatusHITLRequired {
			continue
		}
		c := models.HITLCase{
			RequestID:  exec.RequestID,
			Riesgo:     exec.Riesgo,
			HITLReason: exec.HITLReason,
			CreatedAt:  exec.CreatedAt,
		}
		if req, ok := m.requests[exec.RequestID]; ok {
			c.ProveedorRUT = req.ProveedorRUT
			c.ProveedorNombre = req.ProveedorNombre
			c.MontoContrato = req.MontoContrato
			c.ObjetoContrato = req.ObjetoContrato
		}
		pending = append(pending, c)
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Riesgo.Priority() != pending[j].Riesgo.Priority() {
			return pending[i].Riesgo.Priority() < pending[j].Riesgo.Priority()
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	total := len(pending)
	if offset > len(pending) {
		offset = len(pending)
	}
	pending = pending[offset:]
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}

	return &models.PendingCases{Count: len(pending), Total: total, Cases: pending}, nil
}

func (m *MemoryRepository) AppendAuditEvent(_ context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *event
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, stored)
	return nil
}

func (m *MemoryRepository) ListAuditEvents(_ context.Context, requestID string) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []models.AuditEvent
	for _, e := range m.events {
		if e.RequestID == requestID {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (m *MemoryRepository) HITLStatistics(_ context.Context, window time.Duration) (*models.HITLStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	stats := &models.HITLStatistics{}
	var totalHours float64
	var reviewed int
	for _, exec := range m.executions {
		if !exec.CreatedAt.After(cutoff) {
			continue
		}
		if exec.HITLRequired {
			stats.TotalCases++
			if exec.HITLDecision == nil {
				stats.Pending++
			}
		}
		if exec.HITLDecision != nil {
			switch *exec.HITLDecision {
			case models.DecisionApprove:
				stats.Approved++
			case models.DecisionReject:
				stats.Rejected++
			}
		}
		if exec.HITLReviewedAt != nil {
			totalHours += exec.HITLReviewedAt.Sub(exec.CreatedAt).Hours()
			reviewed++
		}
	}
	for _, e := range m.events {
		if e.EventType == "HITL_DECISION_ESCALATE" && e.Timestamp.After(cutoff) {
			stats.Escalated++
		}
	}
	if reviewed > 0 {
		stats.AvgReviewTimeHours = totalHours / float64(reviewed)
	}
	return stats, nil
}
