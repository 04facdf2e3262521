// Package telemetry pulls live observability data (monitors, events,
// container metrics) from a Datadog-compatible REST API.
package telemetry

import (
	"context"
	"strings"

	"github.com/codeready-toolchain/forge/pkg/models"
)

// MonitorSummary is the condensed view of one monitor.
type MonitorSummary struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	State string   `json:"state"`
	Query string   `json:"query,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// MonitorsSnapshot classifies all monitors by state.
type MonitorsSnapshot struct {
	FetchedAt     string           `json:"fetched_at"`
	TotalMonitors int              `json:"total_monitors"`
	Alerting      []MonitorSummary `json:"alerting_monitors"`
	Warning       []MonitorSummary `json:"warning_monitors"`
	NoData        []MonitorSummary `json:"no_data_monitors"`
	OKCount       int              `json:"ok_count"`
}

// Event is one classified infrastructure event.
type Event struct {
	Timestamp    int64    `json:"timestamp"`
	TimestampISO string   `json:"timestamp_iso,omitempty"`
	Category     string   `json:"category"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags,omitempty"`
}

// EventsReport aggregates recent events with per-category counts.
type EventsReport struct {
	WindowHours int            `json:"window_hours"`
	TotalEvents int            `json:"total_events"`
	Categories  map[string]int `json:"event_categories"`
	Events      []Event        `json:"events"`
}

// MetricStats summarises one container metric across its series.
type MetricStats struct {
	Avg         float64 `json:"avg"`
	Max         float64 `json:"max"`
	Min         float64 `json:"min"`
	SeriesCount int     `json:"series_count"`
}

// Series is one aggregated metric time-series.
type Series struct {
	Metric      string  `json:"metric"`
	Scope       string  `json:"scope"`
	PointCount  int     `json:"point_count"`
	LatestValue float64 `json:"latest_value"`
	AvgValue    float64 `json:"avg_value"`
	MaxValue    float64 `json:"max_value"`
	MinValue    float64 `json:"min_value"`
}

// QueryResult is the response to a metric query.
type QueryResult struct {
	Query       string   `json:"query"`
	Window      string   `json:"window"`
	SeriesCount int      `json:"series_count"`
	Series      []Series `json:"series"`
}

// NamespaceSummary groups active metrics by prefix.
type NamespaceSummary struct {
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// MetricsSummary is the active-metric discovery report.
type MetricsSummary struct {
	WindowMinutes      int                         `json:"window_minutes"`
	TotalActiveMetrics int                         `json:"total_active_metrics"`
	Namespaces         map[string]NamespaceSummary `json:"namespaces"`
}

// Adapter is the observability contract the core depends on.
type Adapter interface {
	MonitorsSnapshot(ctx context.Context) (*MonitorsSnapshot, error)
	RecentEvents(ctx context.Context, hoursBack int, filterTags string, max int) (*EventsReport, error)
	ContainerMetrics(ctx context.Context, namespace string, windowMin int) (map[string]MetricStats, error)
	QueryMetric(ctx context.Context, query string, fromMin, toMin int) (*QueryResult, error)
	ActiveMetricsSummary(ctx context.Context, windowMin int) (*MetricsSummary, error)
	LiveMetricsForService(ctx context.Context, name string) (*models.LiveMetrics, error)
}

// ClassifyEvent buckets an event title into a coarse category.
func ClassifyEvent(title string) string {
	tl := strings.ToLower(title)
	switch {
	case strings.Contains(tl, "oomkill"):
		return "oom_kill"
	case strings.Contains(tl, "deploy"):
		return "deployment"
	case strings.Contains(tl, "unhealthy"), strings.Contains(tl, "health"):
		return "health_check"
	case strings.Contains(tl, "container"):
		return "container_lifecycle"
	case strings.Contains(tl, "node"):
		return "node_event"
	default:
		return "other"
	}
}

// HealthScore derives a coarse health score from utilisation and alert
// pressure. Starts at 100: cpu>80 costs 30 (else >60 costs 15), mem>85 costs
// 20 (else >70 costs 10), each alerting monitor costs 5. Clamped to [5,100].
func HealthScore(cpuPct, memPct float64, haveCPU, haveMem bool, alerting int) float64 {
	score := 100.0
	if haveCPU {
		switch {
		case cpuPct > 80:
			score -= 30
		case cpuPct > 60:
			score -= 15
		}
	}
	if haveMem {
		switch {
		case memPct > 85:
			score -= 20
		case memPct > 70:
			score -= 10
		}
	}
	score -= float64(alerting) * 5
	if score < 5 {
		score = 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// DeriveLatency turns a health score into display latencies when no direct
// latency telemetry exists: p99 = 200 + (100-health)*15, avg ~ 0.4*p99.
func DeriveLatency(health float64) (p99, avg float64) {
	p99 = 200 + (100-health)*15
	return p99, p99 * 0.4
}
