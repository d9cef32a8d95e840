package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terminal-bench/stochopt/internal/config"
	"github.com/terminal-bench/stochopt/internal/events"
)

// threeWeatherPlan is a single-crop plan with a known optimum: plant all 100
// acres, objective (= expected profit) 220000.
const threeWeatherPlan = `{
	"farm_resources": {"total_land": 100},
	"crops": [{
		"name": "strawberry",
		"base_yield_per_plant": 1.0,
		"plants_per_acre": 1000,
		"materials_cost_per_acre": 200,
		"requirement": 5000,
		"contract_price": 3.0,
		"processing_price": 2.0,
		"retail_price": 2.5,
		"waste_cost": 0.1,
		"purchase_price": 4.0
	}],
	"scenarios": [
		{"name": "drought", "probability": 0.3, "yield_changes": {"strawberry": -0.3}},
		{"name": "normal", "probability": 0.5, "yield_changes": {"strawberry": 0.0}},
		{"name": "surplus", "probability": 0.2, "yield_changes": {"strawberry": 0.2}}
	]
}`

type capturedEvent struct {
	subject string
	event   any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(ctx context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{subject: subject, event: event})
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) captured() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capturedEvent, len(p.events))
	copy(out, p.events)
	return out
}

type failingPublisher struct {
	mu       sync.Mutex
	attempts int
}

func (p *failingPublisher) Publish(ctx context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	return errors.New("broker unreachable")
}

func (p *failingPublisher) Close() {}

func (p *failingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func newTestServer(t *testing.T, pub events.Publisher, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Port:             "8080",
		AllowedOrigins:   []string{"*"},
		MaxConcurrent:    2,
		SolveTimeout:     10 * time.Second,
		SimplexTolerance: 1e-9,
		Debug:            true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	if pub == nil {
		pub = events.Noop{}
	}

	return New(cfg, zap.NewNop(), pub)
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestOptimizeEndpoint(t *testing.T) {
	t.Run("should solve a valid plan and return the optimum", func(t *testing.T) {
		pub := &capturePublisher{}
		srv := newTestServer(t, pub, nil)

		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", threeWeatherPlan, nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "optimal", body["status"])
		assert.InDelta(t, 220000.0, body["objective_value"].(float64), 1e-3)
		assert.NotEmpty(t, body["request_id"])
		assert.Equal(t, body["request_id"], w.Header().Get("X-Request-ID"))

		stage1, ok := body["stage1_decisions"].(map[string]any)
		require.True(t, ok)
		plan, ok := stage1["planting_plan"].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 100.0, plan["strawberry"].(float64), 1e-6)

		captured := pub.captured()
		require.Len(t, captured, 1)
		assert.Equal(t, events.SubjectPlanSolved, captured[0].subject)
		solved, ok := captured[0].event.(events.PlanSolved)
		require.True(t, ok)
		assert.Equal(t, body["request_id"], solved.RequestID)
		assert.InDelta(t, 220000.0, solved.ObjectiveValue, 1e-3)
		assert.Equal(t, 3, solved.Scenarios)
	})

	t.Run("should echo a caller-provided request ID", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", threeWeatherPlan,
			map[string]string{"X-Request-ID": "req-abc"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "req-abc", body["request_id"])
		assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", `{"crops": [`, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "validation_error", body["error"])
	})

	t.Run("should reject probabilities that do not sum to one", func(t *testing.T) {
		pub := &capturePublisher{}
		srv := newTestServer(t, pub, nil)

		plan := strings.Replace(threeWeatherPlan, `"probability": 0.5`, `"probability": 0.4`, 1)
		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", plan, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "validation_error", body["error"])

		captured := pub.captured()
		require.Len(t, captured, 1)
		assert.Equal(t, events.SubjectPlanFailed, captured[0].subject)
		failed, ok := captured[0].event.(events.PlanFailed)
		require.True(t, ok)
		assert.Equal(t, "validation_error", failed.Kind)
	})

	t.Run("should return 422 for an infeasible plan", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		// No land and no vendor channel, yet a binding contract.
		plan := `{
			"farm_resources": {"total_land": 0},
			"crops": [{
				"name": "strawberry",
				"base_yield_per_plant": 1.0,
				"plants_per_acre": 1000,
				"materials_cost_per_acre": 200,
				"requirement": 5000,
				"contract_price": 3.0,
				"processing_price": 2.0,
				"retail_price": 2.5,
				"waste_cost": 0.1
			}],
			"scenarios": [{"name": "normal", "probability": 1.0}]
		}`
		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", plan, nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "infeasible", body["error"])
	})

	t.Run("should return 504 when the solve deadline expires", func(t *testing.T) {
		// A negative timeout hands the solver an already-expired context.
		srv := newTestServer(t, nil, func(cfg *config.Config) {
			cfg.SolveTimeout = -time.Nanosecond
		})

		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", threeWeatherPlan, nil)
		require.Equal(t, http.StatusGatewayTimeout, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "timeout", body["error"])
	})

	t.Run("should stop publishing after repeated event failures", func(t *testing.T) {
		pub := &failingPublisher{}
		srv := newTestServer(t, pub, nil)

		// The breaker opens after five consecutive publish failures; the
		// sixth request must not reach the publisher, and every request
		// still succeeds.
		for i := 0; i < 6; i++ {
			w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", threeWeatherPlan, nil)
			require.Equal(t, http.StatusOK, w.Code)
		}

		assert.Equal(t, 5, pub.count())
	})

	t.Run("should return 503 when the solve limit is saturated", func(t *testing.T) {
		srv := newTestServer(t, nil, func(cfg *config.Config) {
			cfg.MaxConcurrent = 1
		})

		require.True(t, srv.solves.TryAcquire(1))
		defer srv.solves.Release(1)

		w := doRequest(srv, http.MethodPost, "/api/v1/agriculture/optimize", threeWeatherPlan, nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "unavailable", body["error"])
	})
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	t.Run("should report service health", func(t *testing.T) {
		w := doRequest(srv, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "stochopt", body["service"])
	})

	t.Run("should report module health", func(t *testing.T) {
		w := doRequest(srv, http.MethodGet, "/api/v1/agriculture/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "agriculture", body["module"])
	})

	t.Run("should describe the service at the root", func(t *testing.T) {
		w := doRequest(srv, http.MethodGet, "/", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "stochopt", body["name"])
		assert.Contains(t, body["modules"], "agriculture")
	})
}

func TestCORS(t *testing.T) {
	t.Run("should allow any origin with the wildcard config", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		w := doRequest(srv, http.MethodOptions, "/api/v1/agriculture/optimize", "", map[string]string{
			"Origin":                        "http://example.com",
			"Access-Control-Request-Method": "POST",
		})
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should allow only listed origins otherwise", func(t *testing.T) {
		srv := newTestServer(t, nil, func(cfg *config.Config) {
			cfg.AllowedOrigins = []string{"http://localhost:5173"}
		})

		w := doRequest(srv, http.MethodOptions, "/api/v1/agriculture/optimize", "", map[string]string{
			"Origin":                        "http://localhost:5173",
			"Access-Control-Request-Method": "POST",
		})
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

		denied := doRequest(srv, http.MethodOptions, "/api/v1/agriculture/optimize", "", map[string]string{
			"Origin":                        "http://evil.example.com",
			"Access-Control-Request-Method": "POST",
		})
		assert.Equal(t, http.StatusForbidden, denied.Code)
	})
}
