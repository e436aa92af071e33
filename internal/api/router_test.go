package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/intervue/internal/api"
	mw "github.com/kiranshivaraju/intervue/internal/api/middleware"
	"github.com/kiranshivaraju/intervue/internal/cache"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "router-test-secret-0123456789abcdef"

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data":{}}`))
}

func newTestRouter(t *testing.T) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:           mw.NewAuth(testSecret),
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		Logger:         zaptest.NewLogger(t),
		HealthHandler:  ok,
		MetricsHandler: metrics.Handler(),
		ScheduleHandler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		},
		ListInterviews: ok,
		GetInterview:   ok,
		MyFeedback:     ok,
	})
}

func bearer(t *testing.T, role models.AccountRole) string {
	t.Helper()
	tok, err := mw.IssueToken(testSecret, "user-"+string(role), role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	// one request so the http counters have a sample
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/health", nil))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/health")
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/interviews"},
		{"GET", "/api/v1/interviews"},
		{"GET", "/api/v1/interviews/7b0c5a0e-1111-4a5b-9c2d-000000000001"},
		{"PATCH", "/api/v1/interviews/7b0c5a0e-1111-4a5b-9c2d-000000000001/status"},
		{"POST", "/api/v1/interviews/7b0c5a0e-1111-4a5b-9c2d-000000000001/feedback"},
		{"GET", "/api/v1/interviews/7b0c5a0e-1111-4a5b-9c2d-000000000001/signal"},
		{"GET", "/api/v1/feedback/me"},
		{"GET", "/api/v1/webrtc/config"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ScheduleIsAssociateOnly(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		role models.AccountRole
		want int
	}{
		{models.AccountAssociate, http.StatusCreated},
		{models.AccountFreelancer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/interviews", nil)
			req.Header.Set("Authorization", bearer(t, tt.role))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_AuthenticatedRequestReachesHandler(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/feedback/me", nil)
	req.Header.Set("Authorization", bearer(t, models.AccountFreelancer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/webrtc/config", nil)
	req.Header.Set("Authorization", bearer(t, models.AccountFreelancer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
