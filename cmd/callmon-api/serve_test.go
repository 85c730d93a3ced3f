package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"callmon-api/internal/auth"
	"callmon-api/internal/callsync"
	"callmon-api/internal/config"
	"callmon-api/internal/http/handler"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine satisfies SnapshotProvider for readiness tests.
type fakeEngine struct {
	snap *callsync.Snapshot
}

func (f *fakeEngine) Snapshot() *callsync.Snapshot { return f.snap }

func testRouterDeps(t *testing.T) RouterDeps {
	t.Helper()
	log, err := logger.New("callmon-api-test", "error")
	require.NoError(t, err)
	return RouterDeps{
		Cfg: &config.Config{OTELServiceName: "test", AppEnv: "test"},
		Log: log,
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := buildRouter(testRouterDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "health endpoint should return 200")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestHealthEndpoint_ReturnsRequestID(t *testing.T) {
	r := buildRouter(testRouterDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID, "X-Request-Id should be generated and returned")
	assert.Contains(t, requestID, "req_", "Request ID should have req_ prefix")
}

func TestHealthEndpoint_PreservesRequestID(t *testing.T) {
	r := buildRouter(testRouterDeps(t))

	clientRequestID := "req_1234567890_abcdef123456"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", clientRequestID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, clientRequestID, w.Header().Get("X-Request-Id"))
}

func TestReadyEndpoint_BeforeFirstCycle(t *testing.T) {
	deps := testRouterDeps(t)
	deps.Engine = &fakeEngine{snap: &callsync.Snapshot{}}
	r := buildRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "error", response["status"])
}

func TestReadyEndpoint_AfterFirstCycle(t *testing.T) {
	deps := testRouterDeps(t)
	deps.Engine = &fakeEngine{snap: &callsync.Snapshot{Cycles: 1}}
	r := buildRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ready", response["status"])
}

func TestReadyEndpoint_StaysReadyOnFailingUpstream(t *testing.T) {
	deps := testRouterDeps(t)
	deps.Engine = &fakeEngine{snap: &callsync.Snapshot{Cycles: 5, LastError: "fetch call history: upstream unavailable"}}
	r := buildRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "degraded sync must not flip readiness")
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	deps := testRouterDeps(t)

	store := auth.NewTokenStore()
	store.RegisterToken("secret", "crm-web")
	deps.TokenStore = store

	engine := &fakeEngine{snap: &callsync.Snapshot{Cycles: 1}}
	deps.Engine = engine
	callService := service.NewCallService(&snapshotAdapter{engine}, nil, deps.Log)
	deps.CallHandler = handler.NewCallHandler(callService)

	r := buildRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/v1/calls", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/calls", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// snapshotAdapter bridges fakeEngine to the call service's source
// interface, which additionally needs RequestRefresh.
type snapshotAdapter struct {
	*fakeEngine
}

func (s *snapshotAdapter) RequestRefresh() {}
