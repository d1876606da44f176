package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/agents/{agentId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {})

	counter := APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/agents/{agentId}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"agent-1", "agent-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/agents/"+id, nil))
	}
	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	scrapes := APIRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Zero(t, testutil.ToFloat64(scrapes))
}
