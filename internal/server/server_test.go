package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/helyotools/dbsentinel/internal/auth"
	"github.com/helyotools/dbsentinel/internal/diagnostic"
	"github.com/helyotools/dbsentinel/internal/models"
	"github.com/helyotools/dbsentinel/internal/telemetry"
	"github.com/helyotools/dbsentinel/internal/view"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// genai pulls in opencensus, whose init starts a view worker that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeSource struct {
	snap  telemetry.Snapshot
	err   error
	polls int
}

func (f *fakeSource) FetchMetrics(context.Context) (telemetry.Snapshot, error) {
	f.polls++
	if f.err != nil {
		return telemetry.Snapshot{History: []models.MetricSample{}, Sessions: []models.SessionSnapshot{}}, f.err
	}
	return f.snap, nil
}

func (f *fakeSource) Ping(context.Context) error { return f.err }

type fakeDiagnoser struct {
	text    string
	err     error
	samples []models.MetricSample
}

func (f *fakeDiagnoser) Diagnose(_ context.Context, s models.MetricSample) (*models.DiagnosticReport, error) {
	f.samples = append(f.samples, s)
	if f.err != nil {
		return nil, f.err
	}
	return &models.DiagnosticReport{Text: f.text, Model: "fake", GeneratedAt: time.Now()}, nil
}

var t0 = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

func sampleSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		History: []models.MetricSample{
			{Timestamp: t0.Add(2 * time.Minute), CPUUsage: 61.26, ActiveConnections: 14, AvgLatencyMs: 9.95, SlowQueriesCount: 2},
			{Timestamp: t0.Add(time.Minute), CPUUsage: 40, ActiveConnections: 10, AvgLatencyMs: 7, SlowQueriesCount: 0},
			{Timestamp: t0, CPUUsage: 35, ActiveConnections: 8, AvgLatencyMs: 6, SlowQueriesCount: 0},
		},
		Sessions: []models.SessionSnapshot{
			{PID: 101, Username: "app", State: "active", Query: "SELECT 1", Duration: "00:00:00.01"},
			{PID: 102, Username: "app", State: "active", Query: "", Duration: "N/A"},
		},
		FetchedAt: t0.Add(3 * time.Minute),
	}
}

type harness struct {
	engine *gin.Engine
	source *fakeSource
	diag   *fakeDiagnoser
	tokens *auth.TokenIssuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	authn, err := auth.NewStaticAuthenticator("ops@example.com", string(hash))
	require.NoError(t, err)

	h := &harness{
		source: &fakeSource{snap: sampleSnapshot()},
		diag:   &fakeDiagnoser{text: "## HEALTH DIAGNOSIS\nfine"},
		tokens: auth.NewTokenIssuer("test-secret", time.Hour),
	}
	srv := New(Deps{
		Source:        h.source,
		Diagnostician: h.diag,
		Authenticator: authn,
		Tokens:        h.tokens,
		Logger:        zap.NewNop(),
	})
	h.engine, err = srv.Handler()
	require.NoError(t, err)
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (h *harness) token(t *testing.T, st view.State) string {
	t.Helper()
	tok, _, err := h.tokens.Issue("ops@example.com", st)
	require.NoError(t, err)
	return tok
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "ops@example.com", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.Splash), body["view"])
	splashTok := body["token"].(string)

	// Dashboard is not reachable from the splash screen.
	w, _ = h.do(t, http.MethodGet, "/api/dashboard", splashTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = h.do(t, http.MethodPost, "/api/start", splashTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.Dashboard), body["view"])
	dashTok := body["token"].(string)

	w, body = h.do(t, http.MethodGet, "/api/view", dashTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.Dashboard), body["view"])
	assert.Equal(t, "ops@example.com", body["username"])

	w, _ = h.do(t, http.MethodPost, "/api/start", dashTok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = h.do(t, http.MethodPost, "/api/logout", dashTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.LoggedOut), body["view"])
	assert.NotContains(t, body, "token")
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "ops@example.com", "password": "123456"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid credentials", body["error"])

	w, _ = h.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "ops@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestViewWithoutToken(t *testing.T) {
	h := newHarness(t)

	_, body := h.do(t, http.MethodGet, "/api/view", "", nil)
	assert.Equal(t, string(view.LoggedOut), body["view"])

	w, body := h.do(t, http.MethodGet, "/api/view", "garbage", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.LoggedOut), body["view"])
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t)

	_, body := h.do(t, http.MethodPost, "/api/login", "", gin.H{"username": "ops@example.com", "password": "s3cret"})
	_, body = h.do(t, http.MethodPost, "/api/start", body["token"].(string), nil)
	dashTok := body["token"].(string)

	w, _ := h.do(t, http.MethodGet, "/api/dashboard", dashTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = h.do(t, http.MethodPost, "/api/logout", dashTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = h.do(t, http.MethodGet, "/api/dashboard", dashTok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = h.do(t, http.MethodPost, "/api/diagnostic", dashTok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = h.do(t, http.MethodGet, "/api/view", dashTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(view.LoggedOut), body["view"])
}

func TestViewIgnoresNonBearerAuthorization(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/view", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(view.LoggedOut), body["view"])

	// Protected routes still reject it.
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/dashboard"},
		{http.MethodPost, "/api/diagnostic"},
		{http.MethodPost, "/api/start"},
		{http.MethodPost, "/api/logout"},
	} {
		w, _ := h.do(t, r.method, r.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, r.path)
	}
	assert.Zero(t, h.source.polls)
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/api/dashboard", h.token(t, view.Dashboard), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["no_data"])

	kpis := body["kpis"].([]any)
	require.Len(t, kpis, 4)
	assert.Equal(t, "61.3%", kpis[0].(map[string]any)["value"])

	charts := body["charts"].([]any)
	require.Len(t, charts, 3)
	points := charts[0].(map[string]any)["points"].([]any)
	require.Len(t, points, 3)
	assert.Equal(t, t0.Format(time.RFC3339), points[0].(map[string]any)["x"])

	sessions := body["sessions"].(map[string]any)
	rows := sessions["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[1].([]any)[3])
	assert.Equal(t, "N/A", rows[1].([]any)[4])

	history := body["history"].(map[string]any)
	assert.Len(t, history["rows"].([]any), 3)
}

func TestDashboardNoData(t *testing.T) {
	h := newHarness(t)
	h.source.snap = telemetry.Snapshot{History: []models.MetricSample{}, Sessions: []models.SessionSnapshot{}}

	w, body := h.do(t, http.MethodGet, "/api/dashboard", h.token(t, view.Dashboard), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["no_data"])
	assert.NotContains(t, body, "kpis")
	assert.NotContains(t, body, "charts")
}

func TestDashboardDataAccessError(t *testing.T) {
	h := newHarness(t)
	h.source.err = &telemetry.DataAccessError{Op: telemetry.OpConnect, Err: errors.New("connection refused")}

	w, body := h.do(t, http.MethodGet, "/api/dashboard", h.token(t, view.Dashboard), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["no_data"])
	assert.Contains(t, body["warning"], "connection refused")
}

func TestDiagnostic(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/diagnostic", h.token(t, view.Dashboard), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "## HEALTH DIAGNOSIS\nfine", body["report"])
	require.Len(t, h.diag.samples, 1)
	assert.Equal(t, sampleSnapshot().History[0], h.diag.samples[0])
}

func TestDiagnosticFailureLeavesDashboardUsable(t *testing.T) {
	h := newHarness(t)
	h.diag.err = &diagnostic.DiagnosticError{Err: errors.New("429 quota exceeded")}
	tok := h.token(t, view.Dashboard)

	w, body := h.do(t, http.MethodPost, "/api/diagnostic", tok, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, body["error"], "quota exceeded")
	assert.Len(t, h.diag.samples, 1)

	w, body = h.do(t, http.MethodGet, "/api/dashboard", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["kpis"], 4)
	assert.Len(t, body["charts"], 3)
}

func TestDiagnosticNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.diag.err = &diagnostic.DiagnosticError{Err: diagnostic.ErrNotConfigured}

	w, _ := h.do(t, http.MethodPost, "/api/diagnostic", h.token(t, view.Dashboard), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDiagnosticWithoutData(t *testing.T) {
	h := newHarness(t)
	h.source.err = &telemetry.DataAccessError{Op: telemetry.OpQueryHistory, Err: errors.New("boom")}

	w, body := h.do(t, http.MethodPost, "/api/diagnostic", h.token(t, view.Dashboard), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["error"], "boom")
	assert.Empty(t, h.diag.samples)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])

	h.source.err = errors.New("down")
	_, body = h.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, "down", body["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/api/dashboard", h.token(t, view.Dashboard), nil)

	w, _ := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `dbsentinel_telemetry_polls_total{result="ok"} 1`)
}

func TestStaticFiles(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DB SENTINEL")

	w, _ = h.do(t, http.MethodGet, "/some/client/route", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<html")

	w, _ = h.do(t, http.MethodGet, "/app.js", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_KEY")

	w, _ = h.do(t, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(t, http.MethodPost, "/whatever", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
