package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeService(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agent/analyze", map[string]any{
		"service": "payment-service", "trigger": "manual",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "payment-service", body["service"])
	assert.Equal(t, 72.0, body["health_score"])
	assert.Equal(t, "degraded", body["status"])
}

func TestAnalyzeService_MissingServiceRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agent/analyze", map[string]any{"trigger": "manual"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_StreamsSSEFrames(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agent/chat", map[string]any{"message": "how is payments?"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `"type":"text"`)
	assert.Contains(t, body, `"content":"hello "`)
	assert.Contains(t, body, `{"type":"done"}`)
}

func TestChat_ErrorFrameOnAgentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.agent.err = context.DeadlineExceeded

	w := env.do(t, http.MethodPost, "/api/agent/chat", map[string]any{"message": "hi"})

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"type":"error"`)
	assert.Contains(t, body, `{"type":"done"}`)
}

func TestAgentActivityFeed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/agent/activity?since_id=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 0.0, body["count"])
}

func TestAllServiceHealth_SortedAscending(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/agent/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	services, ok := body["services"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, services)

	prev := -1.0
	for _, raw := range services {
		svc := raw.(map[string]any)
		score := svc["health_score"].(float64)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
	// The seeded topology has payment-service as the sickest service.
	first := services[0].(map[string]any)
	assert.Equal(t, "payment-service", first["service"])
}

func TestSimulateDegradeAndRecover(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/agent/simulate/degrade?service=order-service", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order-service", decode(t, w)["degraded"])

	node, err := env.graph.ServiceHealth(context.Background(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, 32.0, node.HealthScore)
	assert.Equal(t, 4200.0, node.P99LatencyMs)

	w = env.do(t, http.MethodPost, "/api/agent/simulate/recover?service=order-service", nil)
	require.Equal(t, http.StatusOK, w.Code)

	node, err = env.graph.ServiceHealth(context.Background(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, 98.0, node.HealthScore)
}
