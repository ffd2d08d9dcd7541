package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantransparency/backend/internal/audit"
	"cleantransparency/backend/internal/auth"
	"cleantransparency/backend/internal/hitl"
	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/internal/verify"
	"cleantransparency/backend/internal/workflow"
	"cleantransparency/backend/pkg/models"
)

func newTestServer() (*Server, *echo.Echo) {
	repo := repository.NewMemoryRepository()
	logger := logging.NewLogger()
	engine := workflow.NewEngine(repo,
		workflow.NewHeuristicScorer(),
		workflow.StaticComplianceChecker{Result: true},
		nil, logger)
	s := NewServer(engine,
		hitl.NewCoordinator(repo, logger),
		verify.NewVerifier(repo),
		audit.NewTrailBuilder(repo),
		nil, repo, logger)

	e := echo.New()
	e.GET("/health", s.HandleHealth)
	s.RegisterRoutes(e.Group("/api/v2"))
	return s, e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRunWorkflowLowRisk(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R1","proveedor_rut":"76543210","monto_contrato":1000}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.WorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusCompleted, result.Status)
	require.NotNil(t, result.Certificate)
	assert.Regexp(t, `^CERT-[0-9a-f]{10}$`, result.Certificate.CertificadoID)
}

func TestRunWorkflowHighRiskAccepted(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R2","proveedor_rut":"76543211","monto_contrato":90000000}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var result models.WorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusHITLRequired, result.Status)
	assert.Nil(t, result.Certificate)
}

func TestRunWorkflowMissingRUT(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R3"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowStatusNotFound(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodGet, "/api/v2/workflows/art17/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyUnknownCertificateIsOK(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodGet, "/api/v2/certificates/CERT-0000000000/verify", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Exists)
	assert.False(t, result.Valid)
}

func TestGetCertificateNotFound(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodGet, "/api/v2/certificates/CERT-0000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertificateRoundTrip(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R4","proveedor_rut":"76543212","monto_contrato":500}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.WorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = doJSON(t, e, http.MethodGet, "/api/v2/certificates/"+result.Certificate.CertificadoID+"/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verdict models.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.True(t, verdict.Valid)

	rec = doJSON(t, e, http.MethodGet, "/api/v2/audit/trail/R4", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trail models.AuditTrail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	assert.True(t, trail.Integrity.ChainIntact)
}

func TestSubmitDecisionRequiresReviewer(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodPost, "/api/v2/hitl/cases/R1/decision",
		`{"decision":"approve"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecisionFlow(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R5","proveedor_rut":"76543213","monto_contrato":90000000}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/v2/hitl/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending models.PendingCases
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, "R5", pending.Cases[0].RequestID)

	ctx := auth.WithReviewer(context.Background(), "reviewer@example.com")
	rec = doJSON(t, e, http.MethodPost, "/api/v2/hitl/cases/R5/decision",
		`{"decision":"approve","notes":"checked manually"}`, ctx)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decided models.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decided))
	assert.Equal(t, "reviewer@example.com", decided.ReviewedBy)

	// Second decision on the same case conflicts.
	rec = doJSON(t, e, http.MethodPost, "/api/v2/hitl/cases/R5/decision",
		`{"decision":"reject"}`, ctx)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Approval alone issues no certificate; resume does.
	rec = doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/R5/resume", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.WorkflowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.StatusCompleted, result.Status)
	require.NotNil(t, result.Certificate)
}

func TestSubmitInvalidDecision(t *testing.T) {
	_, e := newTestServer()
	ctx := auth.WithReviewer(context.Background(), "reviewer@example.com")
	rec := doJSON(t, e, http.MethodPost, "/api/v2/hitl/cases/R1/decision",
		`{"decision":"maybe"}`, ctx)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumePendingCaseRejected(t *testing.T) {
	_, e := newTestServer()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/run",
		`{"request_id":"R6","proveedor_rut":"76543214","monto_contrato":90000000}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/api/v2/workflows/art17/R6/resume", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignHashWithoutKey(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodPost, "/api/v2/sign/hash", `{"hash":"abc123"}`, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealth(t *testing.T) {
	_, e := newTestServer()
	rec := doJSON(t, e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
