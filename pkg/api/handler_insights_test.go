package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/forge/pkg/models"
)

func seedInsight(t *testing.T, env *testEnv, service, severity string) string {
	t.Helper()
	id, err := env.store.AddInsight(service, models.Insight{
		Category: models.CategoryPerformance, Severity: severity,
		Title: "Slow queries on " + service, Insight: "p99 elevated",
		Recommendation: "add an index",
	})
	require.NoError(t, err)
	return id
}

func TestListInsights_Filters(t *testing.T) {
	env := newTestEnv(t)
	seedInsight(t, env, "payment-service", models.SeverityHigh)
	seedInsight(t, env, "order-service", models.SeverityLow)

	w := env.do(t, http.MethodGet, "/api/insights/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/insights/?severity=high", nil)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"])

	w = env.do(t, http.MethodGet, "/api/insights/?category=reliability", nil)
	assert.Equal(t, 0.0, decode(t, w)["count"])
}

func TestInsightLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := seedInsight(t, env, "payment-service", models.SeverityHigh)

	// Open high-severity insights surface as recommendations.
	w := env.do(t, http.MethodGet, "/api/insights/recommendations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = env.do(t, http.MethodPatch, "/api/insights/"+id, map[string]any{"status": "acknowledged"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "updated", body["status"])
	assert.Equal(t, "acknowledged", body["new_status"])

	// Acknowledged insights drop out of recommendations.
	w = env.do(t, http.MethodGet, "/api/insights/recommendations", nil)
	assert.Equal(t, 0.0, decode(t, w)["count"])
}

func TestPatchInsight_InvalidStatus400(t *testing.T) {
	env := newTestEnv(t)
	id := seedInsight(t, env, "payment-service", models.SeverityHigh)

	w := env.do(t, http.MethodPatch, "/api/insights/"+id, map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchInsight_Unknown404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPatch, "/api/insights/ins-nope", map[string]any{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPatterns(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.AddPattern("payment-service", models.Pattern{
		Type: "latency_spike", Description: "P99 spikes every deploy", Confidence: 0.6,
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/insights/patterns", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])
}

func TestGenerateInsights(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/insights/generate", map[string]any{"service_name": "payment-service"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	result := body["result"].(map[string]any)
	assert.Equal(t, []any{"payment-service"}, result["services_analyzed"])
}

func TestGenerateInsights_EmptyBodyMeansAllServices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/insights/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestServiceInsights(t *testing.T) {
	env := newTestEnv(t)
	seedInsight(t, env, "payment-service", models.SeverityMedium)

	w := env.do(t, http.MethodGet, "/api/insights/payment-service", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "payment-service", body["service"])
	assert.Equal(t, 1.0, body["insight_count"])
	assert.Equal(t, 0.0, body["pattern_count"])
}
