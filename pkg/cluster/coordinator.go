// Package cluster implements the MAPE-K coordinator: a single-process pool
// of agent replicas with a FIFO work queue, queue-depth driven auto-scaling,
// and post-scale network validation hand-off.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

// Tuning constants. Thresholds are low so scaling triggers quickly in demos.
const (
	MaxServicesPerAgent  = 5
	QueueHighWatermark   = 3
	QueueLowWatermark    = 1
	ScaleCooldownSeconds = 15
	MaxReplicas          = 6
	MinReplicas          = 1

	PrimaryName = "forge-primary"
	ClusterID   = "forge-cluster-demo"

	completedRing  = 50
	validationRing = 20
)

// pendingValidation is the single post-scale validation slot.
type pendingValidation struct {
	trigger string
	replica string
}

// TickResult is the decision record of one MAPE-K iteration.
type TickResult struct {
	Timestamp  string                        `json:"timestamp"`
	Metrics    map[string]any                `json:"metrics"`
	Action     string                        `json:"action"`
	Replicas   []models.Replica              `json:"replicas"`
	Validation *validation.NetworkValidation `json:"validation,omitempty"`
}

// Coordinator owns the replica pool and work queue. All state is mutated
// under one mutex; ticks never perform I/O, validation runs outside the
// lock via RunPendingValidation.
type Coordinator struct {
	validator validation.Adapter
	logger    *slog.Logger

	mu            sync.Mutex
	replicas      map[string]*models.Replica
	order         []string // replica ids in spawn order
	queue         []*models.WorkItem
	completed     []models.WorkItem
	scaleEvents   []models.ScaleEvent
	validations   []*validation.NetworkValidation
	pending       *pendingValidation
	allServices   []string
	lastScaleTime time.Time
	rng           *rand.Rand
}

// New creates a coordinator with the primary replica already running.
func New(validator validation.Adapter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		validator: validator,
		logger:    logger,
		replicas:  map[string]*models.Replica{},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.mu.Lock()
	c.spawnLocked(PrimaryName, "initial")
	c.mu.Unlock()
	return c
}

// SetServices replaces the known-service list and rebalances partitions.
func (c *Coordinator) SetServices(services []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allServices = append([]string(nil), services...)
	c.rebalanceLocked()
}

// Enqueue appends a work item and returns it along with the queue depth.
func (c *Coordinator) Enqueue(service, taskType string, priority int) (models.WorkItem, int) {
	if taskType == "" {
		taskType = models.TaskAnalyze
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &models.WorkItem{
		ID:          "work-" + shortID(6),
		ServiceName: service,
		TaskType:    taskType,
		Priority:    priority,
		EnqueuedAt:  models.Now(),
		Status:      models.WorkPending,
	}
	c.queue = append(c.queue, item)
	return *item, c.pendingDepthLocked()
}

// CompleteWork marks an item done, moves it to the completed ring, and
// frees its replica.
func (c *Coordinator) CompleteWork(workID string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, item := range c.queue {
		if item.ID != workID {
			continue
		}
		item.Status = models.WorkCompleted
		if !success {
			item.Status = models.WorkFailed
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		c.completed = append(c.completed, *item)
		if len(c.completed) > completedRing {
			c.completed = c.completed[len(c.completed)-completedRing:]
		}
		if r, ok := c.replicas[item.AssignedTo]; ok {
			r.AnalysesCompleted++
			r.CurrentTask = ""
		}
		return true
	}
	return false
}

// Tick runs one MAPE-K iteration under the lock. It is purely CPU-bound;
// any scheduled validation must be collected afterwards with
// RunPendingValidation.
func (c *Coordinator) Tick() TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickLocked()
}

func (c *Coordinator) tickLocked() TickResult {
	// Monitor.
	queueDepth := c.pendingDepthLocked()
	running := c.runningLocked()
	replicaCount := len(running)
	servicesPerAgent := float64(len(c.allServices)) / float64(max(replicaCount, 1))

	now := models.Now()
	var totalCPU, totalMem float64
	for _, r := range running {
		loadFactor := float64(len(r.AssignedServices)) / MaxServicesPerAgent
		taskFactor := 0.3
		if r.CurrentTask != "" {
			taskFactor = 1.5
		}
		r.CPULoad = round1(clamp(loadFactor*40+taskFactor*30+c.uniform(-5, 10), 5, 99))
		r.MemoryMB = round1(clamp(loadFactor*300+taskFactor*200+c.uniform(-20, 50), 64, 2048))
		r.LastHeartbeat = now
		totalCPU += r.CPULoad
		totalMem += r.MemoryMB
	}
	avgCPU := round1(totalCPU / float64(max(replicaCount, 1)))

	metrics := map[string]any{
		"queue_depth":        queueDepth,
		"replica_count":      replicaCount,
		"services_per_agent": round1(servicesPerAgent),
		"avg_cpu":            avgCPU,
		"avg_memory_mb":      round1(totalMem / float64(max(replicaCount, 1))),
	}

	// Analyze. One scale action per tick, only outside the cooldown.
	cooldownOK := time.Since(c.lastScaleTime) > ScaleCooldownSeconds*time.Second

	var scaleUp, scaleDown bool
	var reason string
	switch {
	case queueDepth > QueueHighWatermark && replicaCount < MaxReplicas && cooldownOK:
		scaleUp = true
		reason = fmt.Sprintf("queue_depth=%d > high_watermark=%d", queueDepth, QueueHighWatermark)
	case servicesPerAgent > MaxServicesPerAgent && replicaCount < MaxReplicas && cooldownOK:
		scaleUp = true
		reason = fmt.Sprintf("services_per_agent=%.0f > max=%d", servicesPerAgent, MaxServicesPerAgent)
	case avgCPU > 80 && replicaCount < MaxReplicas && cooldownOK:
		scaleUp = true
		reason = fmt.Sprintf("avg_cpu=%.1f%% > 80%%", avgCPU)
	case queueDepth < QueueLowWatermark && replicaCount > MinReplicas && cooldownOK:
		scaleDown = true
		reason = fmt.Sprintf("queue_depth=%d < low_watermark=%d", queueDepth, QueueLowWatermark)
	}

	// Plan + Execute.
	action := "none"
	if scaleUp {
		r := c.spawnLocked("", reason)
		action = fmt.Sprintf("spawned %s (%s)", r.Name, reason)
		c.logger.Info("scaled up", "replica", r.Name, "reason", reason)
	} else if scaleDown {
		if victim := c.victimLocked(running); victim != nil {
			c.killLocked(victim.ReplicaID)
			action = fmt.Sprintf("killed %s (%s)", victim.Name, reason)
			c.logger.Info("scaled down", "replica", victim.Name, "reason", reason)
		}
	}

	// Dispatch one item per idle replica from the Monitor-time snapshot; a
	// replica spawned this tick starts picking up work on the next one.
	for _, r := range running {
		if r.CurrentTask == "" {
			c.dequeueLocked(r)
		}
	}

	return TickResult{
		Timestamp: now,
		Metrics:   metrics,
		Action:    action,
		Replicas:  c.replicaViewLocked(),
	}
}

// SimulateLoad floods the queue with count synthetic items round-robining
// across the known services and runs up to min(count, 4) ticks with the
// cooldown zeroed, so the scaling path fires immediately.
func (c *Coordinator) SimulateLoad(count int) (itemIDs []string, results []TickResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	services := c.allServices
	if len(services) == 0 {
		services = []string{"payment-service", "order-service", "auth-service", "api-gateway", "inventory-svc"}
	}
	for i := 0; i < count; i++ {
		item := &models.WorkItem{
			ID:          "work-" + shortID(6),
			ServiceName: services[i%len(services)],
			TaskType:    models.TaskAnalyze,
			Priority:    i,
			EnqueuedAt:  models.Now(),
			Status:      models.WorkPending,
		}
		c.queue = append(c.queue, item)
		itemIDs = append(itemIDs, item.ID)
	}

	for i := 0; i < min(count, 4); i++ {
		c.lastScaleTime = time.Time{}
		result := c.tickLocked()
		results = append(results, result)
		if result.Action == "none" {
			break
		}
	}
	return itemIDs, results
}

// RunPendingValidation consumes the pending-validation slot, if set, and
// runs the network sweep outside the coordinator lock.
func (c *Coordinator) RunPendingValidation(ctx context.Context) *validation.NetworkValidation {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending == nil || c.validator == nil {
		return nil
	}

	result, err := c.validator.NetworkAfterScale(ctx, pending.trigger, pending.replica)
	if err != nil {
		c.logger.Warn("post-scale validation failed", "trigger", pending.trigger, "error", err)
		return nil
	}
	c.RecordValidation(result)
	return result
}

// RecordValidation pushes a validation result into the bounded ring.
func (c *Coordinator) RecordValidation(result *validation.NetworkValidation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validations = append(c.validations, result)
	if len(c.validations) > validationRing {
		c.validations = c.validations[len(c.validations)-validationRing:]
	}
}

// Validations returns up to limit recent results, oldest first, plus the
// total retained count.
func (c *Coordinator) Validations(limit int) ([]*validation.NetworkValidation, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.validations)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*validation.NetworkValidation, limit)
	copy(out, c.validations[n-limit:])
	return out, n
}

// ScaleEvents returns the full scale-event history, oldest first.
func (c *Coordinator) ScaleEvents() []models.ScaleEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ScaleEvent(nil), c.scaleEvents...)
}

// ScaleManually forces one spawn or kill, bypassing the analyze phase but
// honoring the replica bounds. Returns the action string.
func (c *Coordinator) ScaleManually(direction, reason string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason == "" {
		reason = "manual"
	}
	switch direction {
	case "up":
		if len(c.runningLocked()) >= MaxReplicas {
			return "", fmt.Errorf("cluster: already at max_replicas=%d", MaxReplicas)
		}
		r := c.spawnLocked("", reason)
		return fmt.Sprintf("spawned %s (%s)", r.Name, reason), nil
	case "down":
		running := c.runningLocked()
		if len(running) <= MinReplicas {
			return "", fmt.Errorf("cluster: already at min_replicas=%d", MinReplicas)
		}
		victim := c.victimLocked(running)
		if victim == nil {
			return "", fmt.Errorf("cluster: no eligible victim")
		}
		c.killLocked(victim.ReplicaID)
		return fmt.Sprintf("killed %s (%s)", victim.Name, reason), nil
	default:
		return "", fmt.Errorf("cluster: direction must be up or down")
	}
}

// Status is the full cluster snapshot for the API.
func (c *Coordinator) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := c.runningLocked()
	processing := 0
	for _, item := range c.queue {
		if item.Status == models.WorkProcessing {
			processing++
		}
	}
	completedAnalyses := 0
	for _, r := range c.replicas {
		completedAnalyses += r.AnalysesCompleted
	}

	events := c.scaleEvents
	if len(events) > 10 {
		events = events[len(events)-10:]
	}
	recentValidations := c.validations
	if len(recentValidations) > 5 {
		recentValidations = recentValidations[len(recentValidations)-5:]
	}
	var lastValidation *validation.NetworkValidation
	if len(c.validations) > 0 {
		lastValidation = c.validations[len(c.validations)-1]
	}

	return map[string]any{
		"cluster_id":            ClusterID,
		"total_replicas":        len(c.replicas),
		"running_replicas":      len(running),
		"pending_work_items":    c.pendingDepthLocked(),
		"processing_work_items": processing,
		"completed_analyses":    completedAnalyses,
		"total_services":        len(c.allServices),
		"services_per_agent":    round1(float64(len(c.allServices)) / float64(max(len(running), 1))),
		"replicas":              c.replicaViewLocked(),
		"recent_scale_events":   append([]models.ScaleEvent(nil), events...),
		"validation_results":    append([]*validation.NetworkValidation(nil), recentValidations...),
		"last_validation":       lastValidation,
		"config": map[string]any{
			"max_services_per_agent": MaxServicesPerAgent,
			"queue_high_watermark":   QueueHighWatermark,
			"queue_low_watermark":    QueueLowWatermark,
			"max_replicas":           MaxReplicas,
			"min_replicas":           MinReplicas,
			"scale_cooldown_seconds": ScaleCooldownSeconds,
		},
	}
}

// CompletedWork returns the completed ring, newest first.
func (c *Coordinator) CompletedWork() []models.WorkItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WorkItem, len(c.completed))
	for i, item := range c.completed {
		out[len(c.completed)-1-i] = item
	}
	return out
}

// internal, all called with c.mu held

func (c *Coordinator) spawnLocked(name, reason string) *models.Replica {
	rid := "agent-" + shortID(6)
	if name == "" {
		name = "forge-" + rid[len(rid)-6:]
	}
	r := &models.Replica{
		ReplicaID:        rid,
		Name:             name,
		Status:           "running",
		AssignedServices: []string{},
		SpawnedAt:        models.Now(),
		LastHeartbeat:    models.Now(),
	}
	c.replicas[rid] = r
	c.order = append(c.order, rid)

	if reason == "" {
		reason = "auto-scale"
	}
	c.scaleEvents = append(c.scaleEvents, models.ScaleEvent{
		Event:         "spawn",
		ReplicaID:     rid,
		Name:          name,
		Timestamp:     models.Now(),
		Reason:        reason,
		TotalReplicas: len(c.replicas),
	})
	c.lastScaleTime = time.Now()
	if len(c.replicas) > 1 {
		c.pending = &pendingValidation{trigger: "scale_up", replica: rid}
	}
	c.rebalanceLocked()
	return r
}

func (c *Coordinator) killLocked(rid string) {
	r, ok := c.replicas[rid]
	if !ok || len(c.replicas) <= MinReplicas {
		return
	}
	r.Status = "draining"

	// Hand in-flight work back to the queue.
	for _, item := range c.queue {
		if item.AssignedTo == rid {
			item.AssignedTo = ""
			item.Status = models.WorkPending
		}
	}

	c.scaleEvents = append(c.scaleEvents, models.ScaleEvent{
		Event:         "kill",
		ReplicaID:     rid,
		Name:          r.Name,
		Timestamp:     models.Now(),
		Reason:        "scale-down",
		TotalReplicas: len(c.replicas) - 1,
	})

	delete(c.replicas, rid)
	for i, id := range c.order {
		if id == rid {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.lastScaleTime = time.Now()
	c.pending = &pendingValidation{trigger: "scale_down", replica: rid}
	c.rebalanceLocked()
}

// victimLocked picks the running replica with the fewest assigned services.
// The primary is never a victim.
func (c *Coordinator) victimLocked(running []*models.Replica) *models.Replica {
	var victim *models.Replica
	for _, r := range running {
		if r.Name == PrimaryName {
			continue
		}
		if victim == nil || len(r.AssignedServices) < len(victim.AssignedServices) {
			victim = r
		}
	}
	return victim
}

func (c *Coordinator) rebalanceLocked() {
	running := c.runningLocked()
	if len(running) == 0 || len(c.allServices) == 0 {
		return
	}
	for _, r := range running {
		r.AssignedServices = []string{}
	}
	for i, svc := range c.allServices {
		r := running[i%len(running)]
		r.AssignedServices = append(r.AssignedServices, svc)
	}
}

func (c *Coordinator) dequeueLocked(r *models.Replica) *models.WorkItem {
	for _, item := range c.queue {
		if item.Status == models.WorkPending {
			item.Status = models.WorkProcessing
			item.AssignedTo = r.ReplicaID
			r.CurrentTask = item.TaskType + ":" + item.ServiceName
			return item
		}
	}
	return nil
}

// runningLocked returns running replicas in spawn order, so rebalance and
// victim selection are deterministic.
func (c *Coordinator) runningLocked() []*models.Replica {
	out := make([]*models.Replica, 0, len(c.replicas))
	for _, rid := range c.order {
		if r, ok := c.replicas[rid]; ok && r.Status == "running" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Coordinator) replicaViewLocked() []models.Replica {
	out := make([]models.Replica, 0, len(c.replicas))
	for _, rid := range c.order {
		if r, ok := c.replicas[rid]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (c *Coordinator) pendingDepthLocked() int {
	depth := 0
	for _, item := range c.queue {
		if item.Status == models.WorkPending {
			depth++
		}
	}
	return depth
}

func (c *Coordinator) uniform(lo, hi float64) float64 {
	return lo + c.rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
