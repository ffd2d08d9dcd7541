package workflow

import (
	"context"
	"strings"

	"cleantransparency/backend/pkg/models"
)

// RiskScorer assigns a risk category to the request under certification.
// The real scoring pipeline (internal agents + RAG) plugs in here.
type RiskScorer interface {
	Score(ctx context.Context, state *models.WorkflowState) (models.RiskLevel, error)
}

// RiskScorerFunc adapts a function to the RiskScorer interface.
type RiskScorerFunc func(ctx context.Context, state *models.WorkflowState) (models.RiskLevel, error)

func (f RiskScorerFunc) Score(ctx context.Context, state *models.WorkflowState) (models.RiskLevel, error) {
	return f(ctx, state)
}

// ComplianceChecker evaluates whether the request satisfies the regulatory
// requirements. The real evaluator (Ley 21.595 / 21.634 analysis) plugs in
// here.
type ComplianceChecker interface {
	Check(ctx context.Context, state *models.WorkflowState) (bool, error)
}

// ComplianceCheckerFunc adapts a function to the ComplianceChecker interface.
type ComplianceCheckerFunc func(ctx context.Context, state *models.WorkflowState) (bool, error)

func (f ComplianceCheckerFunc) Check(ctx context.Context, state *models.WorkflowState) (bool, error) {
	return f(ctx, state)
}

// DefaultHighAmountThreshold is the contract amount above which the
// heuristic scorer escalates to ALTO.
const DefaultHighAmountThreshold = 50_000_000

// HeuristicScorer is the built-in placeholder scorer: provider RUTs ending
// in "0" score BAJO, everything else MEDIO, and contracts at or above the
// threshold score ALTO regardless of RUT.
type HeuristicScorer struct {
	HighAmountThreshold float64
}

// NewHeuristicScorer creates a HeuristicScorer with the default threshold.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{HighAmountThreshold: DefaultHighAmountThreshold}
}

func (s *HeuristicScorer) Score(_ context.Context, state *models.WorkflowState) (models.RiskLevel, error) {
	if s.HighAmountThreshold > 0 && state.MontoContrato >= s.HighAmountThreshold {
		return models.RiskAlto, nil
	}
	if strings.HasSuffix(state.ProveedorRUT, "0") {
		return models.RiskBajo, nil
	}
	return models.RiskMedio, nil
}

// StaticComplianceChecker always returns its configured result. The
// production evaluator is external; this stands in for it.
type StaticComplianceChecker struct {
	Result bool
}

func (c StaticComplianceChecker) Check(context.Context, *models.WorkflowState) (bool, error) {
	return c.Result, nil
}
