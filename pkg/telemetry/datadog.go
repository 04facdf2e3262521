package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/sony/gobreaker/v2"
)

// DatadogClient implements Adapter against the Datadog v1 REST API.
// All calls share a 10 s timeout and a circuit breaker so a flapping
// observability backend cannot stall every analysis.
type DatadogClient struct {
	baseURL string
	apiKey  string
	appKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewDatadogClient creates a client for the given site ("datadoghq.com",
// "datadoghq.eu", ...).
func NewDatadogClient(site, apiKey, appKey string) *DatadogClient {
	if site == "" {
		site = "datadoghq.com"
	}
	return &DatadogClient{
		baseURL: "https://api." + site,
		apiKey:  apiKey,
		appKey:  appKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "datadog",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *DatadogClient) MonitorsSnapshot(ctx context.Context) (*MonitorsSnapshot, error) {
	body, err := c.get(ctx, "/api/v1/monitor", url.Values{"page": {"0"}, "page_size": {"100"}})
	if err != nil {
		return nil, err
	}
	var monitors []struct {
		ID           int64    `json:"id"`
		Name         string   `json:"name"`
		Type         string   `json:"type"`
		OverallState string   `json:"overall_state"`
		Query        string   `json:"query"`
		Tags         []string `json:"tags"`
	}
	if err := json.Unmarshal(body, &monitors); err != nil {
		return nil, errs.E(errs.KindMetrics, "telemetry.MonitorsSnapshot", err)
	}

	snap := &MonitorsSnapshot{
		FetchedAt:     models.Now(),
		TotalMonitors: len(monitors),
	}
	for _, m := range monitors {
		sum := MonitorSummary{
			ID:    m.ID,
			Name:  m.Name,
			Type:  m.Type,
			State: m.OverallState,
			Query: truncate(m.Query, 120),
			Tags:  m.Tags,
		}
		switch m.OverallState {
		case "Alert":
			snap.Alerting = append(snap.Alerting, sum)
		case "Warn":
			snap.Warning = append(snap.Warning, sum)
		case "No Data":
			snap.NoData = append(snap.NoData, sum)
		default:
			snap.OKCount++
		}
	}
	return snap, nil
}

func (c *DatadogClient) RecentEvents(ctx context.Context, hoursBack int, filterTags string, max int) (*EventsReport, error) {
	if hoursBack <= 0 {
		hoursBack = 1
	}
	if max <= 0 {
		max = 50
	}
	end := time.Now().Unix()
	q := url.Values{
		"start": {fmt.Sprint(end - int64(hoursBack)*3600)},
		"end":   {fmt.Sprint(end)},
		"count": {fmt.Sprint(max)},
	}
	if filterTags != "" {
		q.Set("tags", filterTags)
	}
	body, err := c.get(ctx, "/api/v1/events", q)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Events []struct {
			Title          string   `json:"title"`
			Tags           []string `json:"tags"`
			DateHappened   int64    `json:"date_happened"`
			SourceTypeName string   `json:"source_type_name"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.E(errs.KindMetrics, "telemetry.RecentEvents", err)
	}

	report := &EventsReport{
		WindowHours: hoursBack,
		Categories:  map[string]int{},
	}
	for _, ev := range payload.Events {
		cat := ClassifyEvent(ev.Title)
		report.Categories[cat]++
		e := Event{
			Timestamp: ev.DateHappened,
			Category:  cat,
			Title:     ev.Title,
			Source:    ev.SourceTypeName,
			Tags:      firstN(ev.Tags, 5),
		}
		if ev.DateHappened > 0 {
			e.TimestampISO = time.Unix(ev.DateHappened, 0).UTC().Format(time.RFC3339)
		}
		report.Events = append(report.Events, e)
	}
	report.TotalEvents = len(report.Events)
	return report, nil
}

func (c *DatadogClient) ContainerMetrics(ctx context.Context, namespace string, windowMin int) (map[string]MetricStats, error) {
	scope := "*"
	if namespace != "" {
		scope = "kube_namespace:" + namespace
	}
	queries := map[string]string{
		"cpu_usage":     fmt.Sprintf("avg:container.cpu.usage{%s}", scope),
		"cpu_throttled": fmt.Sprintf("avg:container.cpu.throttled{%s}", scope),
		"cpu_limit":     fmt.Sprintf("avg:container.cpu.limit{%s}", scope),
		"mem_usage":     fmt.Sprintf("avg:container.memory.usage{%s}", scope),
		"mem_limit":     fmt.Sprintf("avg:container.memory.limit{%s}", scope),
	}

	out := map[string]MetricStats{}
	for name, query := range queries {
		result, err := c.QueryMetric(ctx, query, windowMin, 0)
		if err != nil {
			return nil, err
		}
		var latest []float64
		for _, s := range result.Series {
			latest = append(latest, s.LatestValue)
		}
		if len(latest) == 0 {
			continue
		}
		stats := MetricStats{SeriesCount: len(result.Series)}
		stats.Min, stats.Max = latest[0], latest[0]
		var sum float64
		for _, v := range latest {
			sum += v
			if v > stats.Max {
				stats.Max = v
			}
			if v < stats.Min {
				stats.Min = v
			}
		}
		stats.Avg = sum / float64(len(latest))
		out[name] = stats
	}
	return out, nil
}

func (c *DatadogClient) QueryMetric(ctx context.Context, query string, fromMin, toMin int) (*QueryResult, error) {
	if fromMin <= 0 {
		fromMin = 15
	}
	now := time.Now().Unix()
	q := url.Values{
		"from":  {fmt.Sprint(now - int64(fromMin)*60)},
		"to":    {fmt.Sprint(now - int64(toMin)*60)},
		"query": {query},
	}
	body, err := c.get(ctx, "/api/v1/query", q)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Series []struct {
			Metric    string       `json:"metric"`
			Scope     string       `json:"scope"`
			PointList [][]*float64 `json:"pointlist"`
		} `json:"series"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.E(errs.KindMetrics, "telemetry.QueryMetric", err)
	}

	result := &QueryResult{
		Query:  query,
		Window: fmt.Sprintf("last %d minutes", fromMin),
	}
	for _, s := range payload.Series {
		var values []float64
		for _, p := range s.PointList {
			if len(p) == 2 && p[1] != nil {
				values = append(values, *p[1])
			}
		}
		if len(values) == 0 {
			continue
		}
		sr := Series{
			Metric:      s.Metric,
			Scope:       s.Scope,
			PointCount:  len(values),
			LatestValue: values[len(values)-1],
			MinValue:    values[0],
			MaxValue:    values[0],
		}
		var sum float64
		for _, v := range values {
			sum += v
			if v > sr.MaxValue {
				sr.MaxValue = v
			}
			if v < sr.MinValue {
				sr.MinValue = v
			}
		}
		sr.AvgValue = sum / float64(len(values))
		result.Series = append(result.Series, sr)
	}
	result.SeriesCount = len(result.Series)
	return result, nil
}

func (c *DatadogClient) ActiveMetricsSummary(ctx context.Context, windowMin int) (*MetricsSummary, error) {
	if windowMin <= 0 {
		windowMin = 10
	}
	from := time.Now().Add(-time.Duration(windowMin) * time.Minute).Unix()
	body, err := c.get(ctx, "/api/v1/metrics", url.Values{"from": {fmt.Sprint(from)}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Metrics []string `json:"metrics"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.E(errs.KindMetrics, "telemetry.ActiveMetricsSummary", err)
	}

	grouped := map[string][]string{}
	for _, m := range payload.Metrics {
		prefix := m
		if i := strings.IndexByte(m, '.'); i > 0 {
			prefix = m[:i]
		}
		grouped[prefix] = append(grouped[prefix], m)
	}
	summary := &MetricsSummary{
		WindowMinutes:      windowMin,
		TotalActiveMetrics: len(payload.Metrics),
		Namespaces:         make(map[string]NamespaceSummary, len(grouped)),
	}
	for prefix, names := range grouped {
		sort.Strings(names)
		summary.Namespaces[prefix] = NamespaceSummary{Count: len(names), Samples: firstN(names, 5)}
	}
	return summary, nil
}

// LiveMetricsForService combines container utilisation and monitor pressure
// into one snapshot, deriving health and display latencies. Falls back from
// a service-scoped query to cluster-wide when the scoped query is empty.
func (c *DatadogClient) LiveMetricsForService(ctx context.Context, name string) (*models.LiveMetrics, error) {
	scope := "*"
	if name != "" {
		scope = "service:" + name
	}
	cpu, haveCPU, err := c.latest(ctx, fmt.Sprintf("avg:container.cpu.usage{%s}", scope))
	if err != nil {
		return nil, err
	}
	if !haveCPU && scope != "*" {
		cpu, haveCPU, err = c.latest(ctx, "avg:container.cpu.usage{*}")
		if err != nil {
			return nil, err
		}
	}
	mem, haveMem, err := c.latest(ctx, fmt.Sprintf("avg:container.memory.usage{%s}", scope))
	if err != nil {
		return nil, err
	}
	if !haveMem && scope != "*" {
		mem, haveMem, err = c.latest(ctx, "avg:container.memory.usage{*}")
		if err != nil {
			return nil, err
		}
	}

	snap, err := c.MonitorsSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	alerting := len(snap.Alerting)

	cpuPct := clampPct(cpu * 100)
	memPct := clampPct(mem * 100)
	health := HealthScore(cpuPct, memPct, haveCPU, haveMem, alerting)
	p99, avg := DeriveLatency(health)

	return &models.LiveMetrics{
		P99LatencyMs:     p99,
		AvgLatencyMs:     avg,
		HealthScore:      health,
		CPUUsagePercent:  cpuPct,
		MemUsagePercent:  memPct,
		AlertingMonitors: alerting,
	}, nil
}

func (c *DatadogClient) latest(ctx context.Context, query string) (float64, bool, error) {
	result, err := c.QueryMetric(ctx, query, 15, 0)
	if err != nil {
		return 0, false, err
	}
	var sum float64
	for _, s := range result.Series {
		sum += s.LatestValue
	}
	if len(result.Series) == 0 {
		return 0, false, nil
	}
	return sum / float64(len(result.Series)), true, nil
}

func (c *DatadogClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("DD-API-KEY", c.apiKey)
		req.Header.Set("DD-APPLICATION-KEY", c.appKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 256))
		}
		return data, nil
	})
	if err != nil {
		return nil, errs.E(errs.KindMetrics, "telemetry.get "+path, err)
	}
	return body, nil
}

func clampPct(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
