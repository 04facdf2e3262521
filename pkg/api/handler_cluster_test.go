package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/cluster/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "forge-cluster-demo", body["cluster_id"])
	assert.Equal(t, 1.0, body["total_replicas"])
	assert.NotNil(t, body["config"])
}

func TestClusterEnqueueAndTick(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/enqueue", map[string]any{
		"service_name": "payment-service",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "enqueued", body["status"])
	assert.Equal(t, 1.0, body["queue_depth"])

	w = env.do(t, http.MethodPost, "/api/cluster/tick", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tick := decode(t, w)
	assert.Equal(t, "none", tick["action"])
	assert.NotNil(t, tick["metrics"])
}

func TestClusterEnqueue_MissingService400(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/enqueue", map[string]any{"task_type": "analyze"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClusterSimulateLoad(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/simulate-load", map[string]any{"count": 6})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "load_simulated", body["status"])
	assert.Equal(t, 6.0, body["items_enqueued"])
	assert.NotEmpty(t, body["scale_actions"])
	assert.Greater(t, body["final_replicas"].(float64), 1.0)
	require.NotNil(t, body["validation"])
	validation := body["validation"].(map[string]any)
	assert.Equal(t, "scale_up", validation["trigger_event"])
}

func TestClusterValidateAndList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "manual", body["trigger_event"])
	assert.Equal(t, "api-manual", body["trigger_replica"])

	w = env.do(t, http.MethodGet, "/api/cluster/validations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])
}

func TestClusterCompleteWork(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/enqueue", map[string]any{"service_name": "auth-service"})
	require.Equal(t, http.StatusOK, w.Code)
	item := decode(t, w)["work_item"].(map[string]any)
	workID := item["id"].(string)

	env.do(t, http.MethodPost, "/api/cluster/tick", nil)

	w = env.do(t, http.MethodPost, "/api/cluster/complete/"+workID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, true, body["success"])

	w = env.do(t, http.MethodPost, "/api/cluster/complete/"+workID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClusterEventsAndReport(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/cluster/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"], "initial spawn event")

	w = env.do(t, http.MethodGet, "/api/cluster/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.NotNil(t, report["cluster"])
	assert.NotNil(t, report["completed_work"])
}

func TestClusterScale(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cluster/scale", map[string]any{
		"direction": "up", "reason": "load test prep",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "scaled", body["status"])
	assert.Contains(t, body["action"], "spawned")
	assert.NotNil(t, body["validation"])

	w = env.do(t, http.MethodPost, "/api/cluster/scale", map[string]any{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
