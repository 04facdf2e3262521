// Package models holds the domain types shared across Forge components.
// JSON tags match both the persisted knowledge document and the HTTP wire
// format, so the same structs serve storage and the API.
package models

import "time"

// ServiceNode is a service as recorded in the topology graph.
type ServiceNode struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Team            string  `json:"team"`
	Criticality     string  `json:"criticality"`
	HealthScore     float64 `json:"health_score"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	MemUsagePercent float64 `json:"mem_usage_percent"`
	DataSource      string  `json:"data_source,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// Service status bands derived from the health score.
const (
	ServiceHealthy  = "healthy"
	ServiceDegraded = "degraded"
	ServiceCritical = "critical"
)

// StatusFor maps a health score to its status band.
func StatusFor(health float64) string {
	switch {
	case health >= 80:
		return ServiceHealthy
	case health >= 50:
		return ServiceDegraded
	default:
		return ServiceCritical
	}
}

// DependencyEdge is a directed CALLS edge between two services.
type DependencyEdge struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms"`
	RequestsPerMin float64 `json:"requests_per_min"`
}

// Deployment is an append-only deployment record attached to a service.
type Deployment struct {
	ID         string `json:"id"`
	Service    string `json:"service,omitempty"`
	Version    string `json:"version"`
	Status     string `json:"status"`
	DeployedAt string `json:"deployed_at"`
	DeployedBy string `json:"deployed_by"`
}

// Baseline is the last observed metric snapshot for a service.
// Overwritten wholesale on each update.
type Baseline map[string]any

// Pattern is a recurring behaviour detected for a service. Patterns with the
// same type and a similar description merge instead of duplicating.
type Pattern struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Description      string   `json:"description"`
	Confidence       float64  `json:"confidence"`
	Recommendation   string   `json:"recommendation,omitempty"`
	FirstDetected    string   `json:"first_detected"`
	LastConfirmed    string   `json:"last_confirmed"`
	Occurrences      int      `json:"occurrences"`
	ServicesInvolved []string `json:"services_involved,omitempty"`
}

// Insight is a categorised finding with severity and lifecycle status.
// Append-only except for Status.
type Insight struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Insight        string `json:"insight"`
	Evidence       string `json:"evidence,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Service        string `json:"service,omitempty"`
}

// Insight categories and severities.
const (
	CategoryPerformance  = "performance"
	CategoryReliability  = "reliability"
	CategoryCost         = "cost"
	CategoryOptimization = "optimization"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// ValidInsightStatus reports whether s is a legal insight lifecycle state.
func ValidInsightStatus(s string) bool {
	return s == StatusOpen || s == StatusAcknowledged || s == StatusResolved
}

// AnalysisSession summarises one analysis run for the history ring.
type AnalysisSession struct {
	SessionID         string   `json:"session_id"`
	Trigger           string   `json:"trigger"`
	ServicesAnalyzed  []string `json:"services_analyzed"`
	FindingsSummary   string   `json:"findings_summary"`
	ActionsTaken      []string `json:"actions_taken"`
	InsightsGenerated []string `json:"insights_generated"`
	Timestamp         string   `json:"timestamp"`
}

// ServiceMemory is everything the knowledge store holds for one service.
type ServiceMemory struct {
	BaselineMetrics Baseline  `json:"baseline_metrics"`
	Patterns        []Pattern `json:"patterns"`
	Insights        []Insight `json:"insights"`
}

// Memory is the full persisted knowledge document.
type Memory struct {
	Version         string                    `json:"version"`
	LastUpdated     string                    `json:"last_updated"`
	Services        map[string]*ServiceMemory `json:"services"`
	GlobalPatterns  []Pattern                 `json:"global_patterns"`
	AnalysisHistory []AnalysisSession         `json:"analysis_history"`
}

// Anomaly is one detected deviation inside an analysis report.
type Anomaly struct {
	Type         string  `json:"type"`
	Metric       string  `json:"metric"`
	CurrentValue float64 `json:"current_value"`
	Description  string  `json:"description"`
}

// ActionTaken is one remediation step recorded in a report.
type ActionTaken struct {
	ActionType string `json:"action_type"`
	Service    string `json:"service"`
	Result     string `json:"result"`
}

// ValidationSummary is the validation block of a report.
type ValidationSummary struct {
	Recovered    bool    `json:"recovered"`
	LatencyP99Ms float64 `json:"latency_p99_ms"`
	PassRate     float64 `json:"pass_rate"`
}

// Report is the structured output of one service analysis.
type Report struct {
	RunID             string            `json:"run_id"`
	Timestamp         string            `json:"timestamp"`
	Service           string            `json:"service"`
	HealthScore       float64           `json:"health_score"`
	Status            string            `json:"status"`
	Anomalies         []Anomaly         `json:"anomalies"`
	RootCause         string            `json:"root_cause"`
	RootCauseService  string            `json:"root_cause_service"`
	AffectedUpstream  []string          `json:"affected_upstream"`
	RecommendedAction string            `json:"recommended_action"`
	ActionsTaken      []ActionTaken     `json:"actions_taken"`
	Validation        ValidationSummary `json:"validation"`
	ChatSummary       string            `json:"chat_summary"`
}

// InsightsSummary is the result of a GenerateInsights run.
type InsightsSummary struct {
	ServicesAnalyzed       []string  `json:"services_analyzed"`
	InsightsGeneratedCount int       `json:"insights_generated_count"`
	PatternsDetectedCount  int       `json:"patterns_detected_count"`
	TopRecommendations     []Insight `json:"top_recommendations"`
}

// Replica is one agent worker in the coordinator pool.
type Replica struct {
	ReplicaID         string   `json:"replica_id"`
	Name              string   `json:"name"`
	Status            string   `json:"status"`
	AssignedServices  []string `json:"assigned_services"`
	AnalysesCompleted int      `json:"analyses_completed"`
	CurrentTask       string   `json:"current_task"`
	SpawnedAt         string   `json:"spawned_at"`
	LastHeartbeat     string   `json:"last_heartbeat"`
	CPULoad           float64  `json:"cpu_load"`
	MemoryMB          float64  `json:"memory_mb"`
}

// WorkItem is one queued unit of agent work.
type WorkItem struct {
	ID          string `json:"id"`
	ServiceName string `json:"service_name"`
	TaskType    string `json:"task_type"`
	Priority    int    `json:"priority"`
	EnqueuedAt  string `json:"enqueued_at"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	Status      string `json:"status"`
}

// Work item task types and states.
const (
	TaskAnalyze          = "analyze"
	TaskGenerateInsights = "generate_insights"

	WorkPending    = "pending"
	WorkProcessing = "processing"
	WorkCompleted  = "completed"
	WorkFailed     = "failed"
)

// ScaleEvent records one spawn or kill decision.
type ScaleEvent struct {
	Event         string `json:"event"`
	ReplicaID     string `json:"replica_id"`
	Name          string `json:"name"`
	Timestamp     string `json:"timestamp"`
	Reason        string `json:"reason"`
	TotalReplicas int    `json:"total_replicas"`
}

// ActivityEntry is one row of the bounded activity ring.
type ActivityEntry struct {
	ID        int            `json:"id"`
	Timestamp string         `json:"ts"`
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Summary   string         `json:"summary"`
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ActionRecord is one journalled remediation action.
type ActionRecord struct {
	ID         string         `json:"id"`
	ActionType string         `json:"action_type"`
	Service    string         `json:"service"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// LiveMetrics is the convenience snapshot from the metrics adapter.
type LiveMetrics struct {
	P99LatencyMs     float64 `json:"p99_latency_ms"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	HealthScore      float64 `json:"health_score"`
	CPUUsagePercent  float64 `json:"cpu_usage_percent"`
	MemUsagePercent  float64 `json:"mem_usage_percent"`
	AlertingMonitors int     `json:"alerting_monitors"`
}

// TestStrategy is one generated network test plan.
type TestStrategy struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Target      string   `json:"target"`
	DerivedFrom string   `json:"derived_from"`
	Severity    string   `json:"severity"`
	Endpoints   []string `json:"endpoints"`
	Concurrency int      `json:"concurrency"`
	Samples     int      `json:"samples"`
}

// ProbeResult is one measured HTTP probe inside a strategy run.
type ProbeResult struct {
	Endpoint   string  `json:"endpoint"`
	StatusCode int     `json:"status_code"`
	LatencyMs  float64 `json:"latency_ms"`
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
}

// StrategyResult is the outcome of executing one strategy.
type StrategyResult struct {
	StrategyID string         `json:"strategy_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Target     string         `json:"target"`
	Status     string         `json:"status"`
	Summary    string         `json:"summary"`
	Probes     []ProbeResult  `json:"probes,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	StartedAt  string         `json:"started_at"`
	DurationMs float64        `json:"duration_ms"`
}

// TestReport aggregates all strategy results of one run.
type TestReport struct {
	RunID           string           `json:"run_id"`
	StartedAt       string           `json:"started_at"`
	DurationMs      float64          `json:"duration_ms"`
	OverallStatus   string           `json:"overall_status"`
	Passed          int              `json:"passed"`
	Failed          int              `json:"failed"`
	Partial         int              `json:"partial"`
	Results         []StrategyResult `json:"results"`
	Recommendations []string         `json:"recommendations"`
}

// ValidationResult is one post-scale or recovery validation outcome.
type ValidationResult struct {
	ID        string         `json:"id"`
	Trigger   string         `json:"trigger"`
	Target    string         `json:"target"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Now returns the canonical timestamp format used across the system.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
