package cluster

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

type fakeValidator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeValidator) ValidateRecovery(_ context.Context, service string, _ float64, _ string) (*validation.RecoveryResult, error) {
	return &validation.RecoveryResult{Service: service, Recovered: true}, nil
}

func (f *fakeValidator) ValidateScaleStability(_ context.Context, service, _ string, _, _, _ int, _ string) (*validation.StabilityResult, error) {
	return &validation.StabilityResult{Service: service, NetworkStable: true}, nil
}

func (f *fakeValidator) NetworkAfterScale(_ context.Context, trigger, replica string) (*validation.NetworkValidation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trigger+":"+replica)
	return &validation.NetworkValidation{
		ValidationID:   "nv-" + fmt.Sprint(len(f.calls)),
		TriggerEvent:   trigger,
		TriggerReplica: replica,
		Status:         "passed",
	}, nil
}

func resetCooldown(c *Coordinator) {
	c.mu.Lock()
	c.lastScaleTime = time.Time{}
	c.mu.Unlock()
}

func TestNew_SpawnsPrimary(t *testing.T) {
	c := New(&fakeValidator{}, nil)

	status := c.Status()
	assert.Equal(t, ClusterID, status["cluster_id"])
	assert.Equal(t, 1, status["total_replicas"])
	assert.Equal(t, 1, status["running_replicas"])

	events := c.ScaleEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "spawn", events[0].Event)
	assert.Equal(t, PrimaryName, events[0].Name)
	assert.Equal(t, "initial", events[0].Reason)

	// The initial spawn never schedules a validation run.
	assert.Nil(t, c.RunPendingValidation(context.Background()))
}

func TestTick_QueueFloodSpawnsReplica(t *testing.T) {
	val := &fakeValidator{}
	c := New(val, nil)

	for i := 0; i < 5; i++ {
		_, depth := c.Enqueue("payment-service", models.TaskAnalyze, i)
		assert.Equal(t, i+1, depth)
	}

	resetCooldown(c)
	result := c.Tick()

	assert.Contains(t, result.Action, "spawned")
	assert.Contains(t, result.Action, "queue_depth=5 > high_watermark=3")
	assert.Equal(t, 5, result.Metrics["queue_depth"])
	assert.Len(t, result.Replicas, 2)

	// The spawn left a post-scale validation pending.
	nv := c.RunPendingValidation(context.Background())
	require.NotNil(t, nv)
	assert.Equal(t, "scale_up", nv.TriggerEvent)
	require.Len(t, val.calls, 1)
	assert.True(t, strings.HasPrefix(val.calls[0], "scale_up:agent-"))

	results, total := c.Validations(10)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "passed", results[0].Status)
}

func TestTick_CooldownBlocksScaling(t *testing.T) {
	c := New(&fakeValidator{}, nil)

	for i := 0; i < 5; i++ {
		c.Enqueue("order-service", models.TaskAnalyze, i)
	}

	// New() just spawned the primary, so the cooldown window is open.
	result := c.Tick()
	assert.Equal(t, "none", result.Action)
	assert.Len(t, result.Replicas, 1)
}

func TestTick_OneScaleActionPerTick(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	for i := 0; i < 20; i++ {
		c.Enqueue("auth-service", models.TaskAnalyze, i)
	}

	resetCooldown(c)
	result := c.Tick()
	assert.Contains(t, result.Action, "spawned")
	assert.Len(t, result.Replicas, 2)
}

func TestTick_ScaleDownSparesPrimary(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	c.SetServices([]string{"a", "b", "c", "d"})

	_, err := c.ScaleManually("up", "test")
	require.NoError(t, err)
	_, err = c.ScaleManually("up", "test")
	require.NoError(t, err)

	resetCooldown(c)
	result := c.Tick()

	assert.Contains(t, result.Action, "killed")
	assert.Contains(t, result.Action, "queue_depth=0 < low_watermark=1")
	require.Len(t, result.Replicas, 2)

	var primarySurvives bool
	for _, r := range result.Replicas {
		if r.Name == PrimaryName {
			primarySurvives = true
		}
	}
	assert.True(t, primarySurvives)
}

func TestRebalance_RoundRobin(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	_, err := c.ScaleManually("up", "test")
	require.NoError(t, err)

	c.SetServices([]string{"s1", "s2", "s3", "s4", "s5"})

	c.mu.Lock()
	running := c.runningLocked()
	c.mu.Unlock()

	require.Len(t, running, 2)
	assert.Equal(t, []string{"s1", "s3", "s5"}, running[0].AssignedServices)
	assert.Equal(t, []string{"s2", "s4"}, running[1].AssignedServices)
}

func TestDispatchAndCompleteWork(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	item, _ := c.Enqueue("payment-service", models.TaskAnalyze, 0)

	c.Tick()

	c.mu.Lock()
	primary := c.runningLocked()[0]
	task := primary.CurrentTask
	c.mu.Unlock()
	assert.Equal(t, "analyze:payment-service", task)

	require.True(t, c.CompleteWork(item.ID, true))
	assert.False(t, c.CompleteWork(item.ID, true), "double completion")

	completed := c.CompletedWork()
	require.Len(t, completed, 1)
	assert.Equal(t, models.WorkCompleted, completed[0].Status)

	c.mu.Lock()
	assert.Empty(t, primary.CurrentTask)
	assert.Equal(t, 1, primary.AnalysesCompleted)
	c.mu.Unlock()
}

func TestCompleteWork_FailureKeepsCounter(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	item, _ := c.Enqueue("auth-service", models.TaskAnalyze, 0)
	c.Tick()

	require.True(t, c.CompleteWork(item.ID, false))
	completed := c.CompletedWork()
	require.Len(t, completed, 1)
	assert.Equal(t, models.WorkFailed, completed[0].Status)
}

func TestKill_RequeuesInFlightWork(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	_, err := c.ScaleManually("up", "test")
	require.NoError(t, err)

	// Fill both replicas, then scale down and verify the victim's item
	// went back to pending.
	c.Enqueue("svc-a", models.TaskAnalyze, 0)
	c.Enqueue("svc-b", models.TaskAnalyze, 1)
	c.Tick()

	status := c.Status()
	assert.Equal(t, 2, status["processing_work_items"])

	_, err = c.ScaleManually("down", "test")
	require.NoError(t, err)

	status = c.Status()
	assert.Equal(t, 1, status["total_replicas"])
	assert.Equal(t, 1, status["pending_work_items"])
	assert.Equal(t, 1, status["processing_work_items"])
}

func TestScaleManually_Bounds(t *testing.T) {
	c := New(&fakeValidator{}, nil)

	_, err := c.ScaleManually("down", "")
	assert.Error(t, err, "cannot drop below min_replicas")

	for i := 1; i < MaxReplicas; i++ {
		_, err = c.ScaleManually("up", "")
		require.NoError(t, err)
	}
	_, err = c.ScaleManually("up", "")
	assert.Error(t, err, "cannot exceed max_replicas")

	_, err = c.ScaleManually("sideways", "")
	assert.Error(t, err)
}

func TestSimulateLoad_GrowsClusterUnderBacklog(t *testing.T) {
	val := &fakeValidator{}
	c := New(val, nil)

	itemIDs, results := c.SimulateLoad(5)

	assert.Len(t, itemIDs, 5)
	require.GreaterOrEqual(t, len(results), 2)
	assert.LessOrEqual(t, len(results), 4)

	// Each tick dispatches over the replicas present at Monitor time, so
	// one flood of 5 keeps the depth above the watermark long enough to
	// grow the pool past a single extra replica.
	assert.Contains(t, results[0].Action, "spawned")
	assert.Contains(t, results[1].Action, "spawned")
	total := c.Status()["total_replicas"].(int)
	assert.GreaterOrEqual(t, total, 3)

	events := c.ScaleEvents()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "initial", events[0].Reason)
	for _, ev := range events[1:] {
		assert.Equal(t, "spawn", ev.Event)
		assert.Contains(t, ev.Reason, "queue_depth")
	}

	// The last spawn leaves exactly one validation pending.
	nv := c.RunPendingValidation(context.Background())
	require.NotNil(t, nv)
	assert.Nil(t, c.RunPendingValidation(context.Background()))

	_, retained := c.Validations(0)
	assert.Equal(t, 1, retained)
}

func TestStatus_Shape(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	c.SetServices([]string{"a", "b"})

	status := c.Status()
	assert.Equal(t, 2, status["total_services"])
	assert.Equal(t, 2.0, status["services_per_agent"])
	assert.Equal(t, 0, status["completed_analyses"])

	cfg, ok := status["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, QueueHighWatermark, cfg["queue_high_watermark"])
	assert.Equal(t, MaxReplicas, cfg["max_replicas"])

	replicas, ok := status["replicas"].([]models.Replica)
	require.True(t, ok)
	require.Len(t, replicas, 1)
	assert.Equal(t, PrimaryName, replicas[0].Name)
}

func TestValidations_RingBounded(t *testing.T) {
	c := New(&fakeValidator{}, nil)
	for i := 0; i < validationRing+5; i++ {
		c.RecordValidation(&validation.NetworkValidation{ValidationID: fmt.Sprintf("v-%d", i)})
	}

	results, total := c.Validations(0)
	assert.Equal(t, validationRing, total)
	require.Len(t, results, validationRing)
	assert.Equal(t, fmt.Sprintf("v-%d", validationRing+4), results[len(results)-1].ValidationID)
}
