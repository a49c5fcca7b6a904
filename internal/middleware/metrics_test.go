package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/posqueue/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsRouter(t *testing.T, status int) (*chi.Mux, *observability.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/v1/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return r, m, reg
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	r, m, reg := newMetricsRouter(t, http.StatusOK)

	for _, id := range []string{"txn_1", "txn_2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/transactions/{id}", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var foundDuration bool
	for _, mf := range families {
		if mf.GetName() == "test_http_request_duration_seconds" {
			foundDuration = true
		}
	}
	assert.True(t, foundDuration)
}

func TestMetrics_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{"created", http.StatusCreated, "201"},
		{"not found", http.StatusNotFound, "404"},
		{"conflict", http.StatusConflict, "409"},
		{"server error", http.StatusInternalServerError, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m, _ := newMetricsRouter(t, tt.status)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/txn_1", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/transactions/{id}", tt.label)))
		})
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scan/../../etc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "200")))
}

func TestMetrics_NilMetricsPassThrough(t *testing.T) {
	h := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStatusWriter_DefaultStatus(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.Write([]byte("test"))

	assert.Equal(t, http.StatusOK, sw.statusCode)
}
