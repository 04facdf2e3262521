package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
	Links []graphLink `json:"links"`
}

func TestFullGraph(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/graph/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp graphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Nodes)
	require.NotEmpty(t, resp.Links)

	byName := map[string]graphNode{}
	for _, n := range resp.Nodes {
		byName[n.ID] = n
		switch {
		case n.HealthScore >= 80:
			assert.Equal(t, "#22c55e", n.Color, n.ID)
		case n.HealthScore >= 50:
			assert.Equal(t, "#f59e0b", n.Color, n.ID)
		default:
			assert.Equal(t, "#ef4444", n.Color, n.ID)
		}
		if n.Criticality == "critical" {
			assert.Equal(t, 8, n.Val, n.ID)
		} else {
			assert.Equal(t, 5, n.Val, n.ID)
		}
	}

	// The degraded seed service renders red.
	payment, ok := byName["payment-service"]
	require.True(t, ok)
	assert.Equal(t, "#ef4444", payment.Color)
	assert.Equal(t, 8, payment.Val)
}

func TestServiceSubgraph(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/graph/service/payment-service?hops=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		graphResponse
		Center string `json:"center"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "payment-service", resp.Center)

	included := map[string]bool{}
	for _, n := range resp.Nodes {
		included[n.ID] = true
	}
	assert.True(t, included["payment-service"])
	// Direct neighbours come along; every link endpoint stays inside the set.
	assert.True(t, included["payment-gateway"])
	for _, l := range resp.Links {
		assert.True(t, included[l.Source], l.Source)
		assert.True(t, included[l.Target], l.Target)
	}
}

func TestServiceSubgraph_UnknownService404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/graph/service/no-such-service", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecentDeployments(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.graph.RecordDeployment(context.Background(), "order-service", "v9.9.9", "success")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/graph/deployments/recent?hours=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, 1.0, body["window_hours"])
	deployments := body["deployments"].([]any)
	require.NotEmpty(t, deployments)

	var found bool
	for _, raw := range deployments {
		d := raw.(map[string]any)
		if d["version"] == "v9.9.9" {
			found = true
		}
	}
	assert.True(t, found)
}
