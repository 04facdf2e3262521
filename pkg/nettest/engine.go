// Package nettest derives executable network test strategies from the
// knowledge store and runs them against the platform's own HTTP surface.
package nettest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/models"
)

const probeTimeout = 8 * time.Second

// coreEndpoint is one always-probed platform endpoint.
type coreEndpoint struct {
	Path string
	Name string
}

// CoreEndpoints is the fixed set every health sweep covers.
var CoreEndpoints = []coreEndpoint{
	{"/health", "Health Check"},
	{"/api/agent/health", "Agent Health"},
	{"/api/cluster/status", "Cluster Status"},
	{"/api/graph/", "Service Graph"},
	{"/api/insights/", "Insights Store"},
	{"/api/cluster/events", "Cluster Events"},
}

// Strategy types.
const (
	TypeHealthSweep     = "health_sweep"
	TypeLatencyProbe    = "latency_probe"
	TypeLoadBurst       = "load_burst"
	TypeCascadeSim      = "cascade_sim"
	TypeDependencyChain = "dependency_chain"
)

var latencyKeywords = []string{"latency", "p99", "slow", "timeout", "response time"}
var overloadKeywords = []string{"overload", "cpu", "spike", "scale", "capacity", "traffic"}

// Engine generates and executes network test strategies. The last report is
// cached for the results endpoint.
type Engine struct {
	baseURL string
	store   *memory.Store
	client  *http.Client

	mu         sync.Mutex
	lastReport *models.TestReport
}

// NewEngine creates an engine probing baseURL, reading plans from store.
func NewEngine(baseURL string, store *memory.Store) *Engine {
	return &Engine{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		client:  &http.Client{Timeout: probeTimeout},
	}
}

// GenerateStrategies derives the test plan from stored insights and
// patterns. Rules fire once per composite key, in order.
func GenerateStrategies(insights []models.Insight, patterns []memory.PatternView) []models.TestStrategy {
	strategies := []models.TestStrategy{{
		ID:          newStrategyID(),
		Name:        "Core Endpoint Health Sweep",
		Type:        TypeHealthSweep,
		Description: "Verify all platform API endpoints return 2xx within 2 s.",
		Target:      "all",
		DerivedFrom: "baseline",
		Severity:    models.SeverityMedium,
		Endpoints:   corePaths(),
		Concurrency: 1,
		Samples:     10,
	}}

	seen := map[string]bool{}

	for _, ins := range insights {
		svc := ins.Service
		if svc == "" {
			svc = "unknown"
		}
		text := strings.ToLower(ins.Insight + " " + ins.Title)

		if containsAny(text, latencyKeywords) && !seen[svc] {
			strategies = append(strategies, models.TestStrategy{
				ID:   newStrategyID(),
				Name: "Latency Probe: " + svc,
				Type: TypeLatencyProbe,
				Description: fmt.Sprintf("Run 10 sequential requests to %s endpoints and compute "+
					"p50/p95/p99. Derived from insight: %q.", svc, ins.Title),
				Target:      svc,
				DerivedFrom: ins.ID,
				Severity:    ins.Severity,
				Endpoints:   []string{"/api/agent/health", "/api/cluster/status"},
				Concurrency: 1,
				Samples:     10,
			})
			seen[svc] = true
		}

		if containsAny(text, overloadKeywords) && !seen["load-"+svc] {
			strategies = append(strategies, models.TestStrategy{
				ID:   newStrategyID(),
				Name: "Load Burst: " + svc,
				Type: TypeLoadBurst,
				Description: fmt.Sprintf("Fire 20 concurrent requests to simulate a traffic spike on %s. "+
					"Derived from insight: %q.", svc, ins.Title),
				Target:      svc,
				DerivedFrom: ins.ID,
				Severity:    ins.Severity,
				Endpoints:   []string{"/api/cluster/status", "/api/graph/"},
				Concurrency: 20,
				Samples:     10,
			})
			seen["load-"+svc] = true
		}
	}

	for _, pat := range patterns {
		svc := pat.Service
		if svc == "" {
			svc = pat.Scope
		}
		if svc == "" {
			svc = "unknown"
		}
		severity := models.SeverityMedium
		if pat.Confidence > 0.7 {
			severity = models.SeverityHigh
		}

		if strings.Contains(pat.Type, "cascade") && !seen["cascade-"+svc] {
			strategies = append(strategies, models.TestStrategy{
				ID:   newStrategyID(),
				Name: "Cascade Simulation: " + svc,
				Type: TypeCascadeSim,
				Description: fmt.Sprintf("Probe %s and its downstream dependencies sequentially "+
					"to identify where cascade failures originate. Pattern: %q.", svc, clip(pat.Description, 80)),
				Target:      svc,
				DerivedFrom: pat.ID,
				Severity:    severity,
				Endpoints:   []string{"/api/graph/", "/api/cluster/status", "/api/agent/health"},
				Concurrency: 1,
				Samples:     10,
			})
			seen["cascade-"+svc] = true
		}

		if strings.Contains(pat.Type, "dependency") || strings.Contains(pat.Type, "bottleneck") {
			strategies = append(strategies, models.TestStrategy{
				ID:   newStrategyID(),
				Name: "Dependency Chain: " + svc,
				Type: TypeDependencyChain,
				Description: fmt.Sprintf("Walk the known dependency chain for %s and assert each "+
					"hop is reachable within SLO. Pattern: %q.", svc, clip(pat.Description, 80)),
				Target:      svc,
				DerivedFrom: pat.ID,
				Severity:    severity,
				Endpoints:   []string{"/api/graph/", "/api/agent/health", "/api/cluster/status"},
				Concurrency: 1,
				Samples:     10,
			})
		}
	}

	return strategies
}

// Strategies generates the current plan from the store.
func (e *Engine) Strategies() []models.TestStrategy {
	return GenerateStrategies(e.store.GetAllInsights(""), e.store.GetAllPatterns())
}

// RunTests generates the plan, optionally filters it to strategyIDs, runs
// every strategy, and aggregates the report. The report is cached.
func (e *Engine) RunTests(ctx context.Context, strategyIDs []string) (*models.TestReport, error) {
	strategies := e.Strategies()
	if len(strategyIDs) > 0 {
		want := map[string]bool{}
		for _, id := range strategyIDs {
			want[id] = true
		}
		filtered := strategies[:0]
		for _, s := range strategies {
			if want[s.ID] {
				filtered = append(filtered, s)
			}
		}
		strategies = filtered
	}

	start := time.Now()
	report := &models.TestReport{
		RunID:     "ntr-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		StartedAt: models.Now(),
	}

	for _, strat := range strategies {
		var result models.StrategyResult
		switch strat.Type {
		case TypeHealthSweep:
			result = e.runHealthSweep(ctx, strat)
		case TypeLatencyProbe:
			result = e.runLatencyProbe(ctx, strat)
		case TypeLoadBurst:
			result = e.runLoadBurst(ctx, strat)
		case TypeCascadeSim, TypeDependencyChain:
			result = e.runCascade(ctx, strat)
		default:
			continue
		}
		report.Results = append(report.Results, result)

		switch result.Status {
		case "passed":
			report.Passed++
		case "failed":
			report.Failed++
		default:
			report.Partial++
		}
	}

	report.DurationMs = float64(time.Since(start).Milliseconds())
	switch {
	case report.Failed == 0:
		report.OverallStatus = "passed"
	case report.Passed == 0:
		report.OverallStatus = "failed"
	default:
		report.OverallStatus = "partial"
	}
	report.Recommendations = recommend(report.Results)

	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent run, or nil before the first run.
func (e *Engine) LastReport() *models.TestReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// probe issues one GET and measures wall-clock latency.
func (e *Engine) probe(ctx context.Context, path string) models.ProbeResult {
	start := time.Now()
	out := models.ProbeResult{Endpoint: path}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	resp, err := e.client.Do(req)
	out.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		out.Error = clip(err.Error(), 120)
		return out
	}
	resp.Body.Close()
	out.StatusCode = resp.StatusCode
	out.OK = resp.StatusCode >= 200 && resp.StatusCode < 400
	return out
}

// runHealthSweep probes the core endpoints concurrently.
func (e *Engine) runHealthSweep(ctx context.Context, strat models.TestStrategy) models.StrategyResult {
	start := time.Now()
	probes := make([]models.ProbeResult, len(strat.Endpoints))

	var wg sync.WaitGroup
	for i, path := range strat.Endpoints {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			probes[i] = e.probe(ctx, path)
		}(i, path)
	}
	wg.Wait()

	passed := countOK(probes)
	failed := len(probes) - passed
	status := bandFor(passed, failed)

	return models.StrategyResult{
		StrategyID: strat.ID,
		Name:       strat.Name,
		Type:       strat.Type,
		Target:     strat.Target,
		Status:     status,
		Summary:    fmt.Sprintf("%d/%d endpoints healthy", passed, len(probes)),
		Probes:     probes,
		Metrics:    map[string]any{"tests_run": len(probes), "tests_passed": passed, "tests_failed": failed},
		StartedAt:  start.UTC().Format(time.RFC3339),
		DurationMs: float64(time.Since(start).Milliseconds()),
	}
}

// runLatencyProbe hits one endpoint sequentially and derives percentiles.
func (e *Engine) runLatencyProbe(ctx context.Context, strat models.TestStrategy) models.StrategyResult {
	start := time.Now()
	endpoint := "/api/agent/health"
	if len(strat.Endpoints) > 0 {
		endpoint = strat.Endpoints[0]
	}
	samples := strat.Samples
	if samples <= 0 {
		samples = 10
	}

	probes := make([]models.ProbeResult, 0, samples)
	latencies := make([]float64, 0, samples)
	passed := 0
	for i := 0; i < samples; i++ {
		p := e.probe(ctx, endpoint)
		probes = append(probes, p)
		latencies = append(latencies, p.LatencyMs)
		if p.OK {
			passed++
		}
	}

	p50 := percentile(latencies, 50)
	p95 := percentile(latencies, 95)
	p99 := percentile(latencies, 99)
	errorRate := float64(samples-passed) / float64(samples) * 100

	status := "passed"
	switch {
	case p99 > 1000 || errorRate > 10:
		status = "failed"
	case p99 > 500 || errorRate > 0:
		status = "partial"
	}

	return models.StrategyResult{
		StrategyID: strat.ID,
		Name:       strat.Name,
		Type:       strat.Type,
		Target:     strat.Target,
		Status:     status,
		Summary:    fmt.Sprintf("p99 %.1fms over %d samples, %.1f%% errors", p99, samples, errorRate),
		Probes:     probes,
		Metrics: map[string]any{
			"p50_ms": p50, "p95_ms": p95, "p99_ms": p99,
			"error_rate_pct": errorRate,
			"tests_run":      samples, "tests_passed": passed, "tests_failed": samples - passed,
		},
		StartedAt:  start.UTC().Format(time.RFC3339),
		DurationMs: float64(time.Since(start).Milliseconds()),
	}
}

// runLoadBurst fires concurrent requests at one endpoint.
func (e *Engine) runLoadBurst(ctx context.Context, strat models.TestStrategy) models.StrategyResult {
	start := time.Now()
	endpoint := "/api/cluster/status"
	if len(strat.Endpoints) > 0 {
		endpoint = strat.Endpoints[0]
	}
	concurrency := strat.Concurrency
	if concurrency <= 0 {
		concurrency = 20
	}

	probes := make([]models.ProbeResult, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			probes[i] = e.probe(ctx, endpoint)
		}(i)
	}
	wg.Wait()

	latencies := make([]float64, len(probes))
	for i, p := range probes {
		latencies[i] = p.LatencyMs
	}
	passed := countOK(probes)
	failed := concurrency - passed
	errorRate := float64(failed) / float64(concurrency) * 100
	p95 := percentile(latencies, 95)

	status := "passed"
	switch {
	case errorRate > 20:
		status = "failed"
	case errorRate > 5 || p95 > 800:
		status = "partial"
	}

	return models.StrategyResult{
		StrategyID: strat.ID,
		Name:       strat.Name,
		Type:       strat.Type,
		Target:     strat.Target,
		Status:     status,
		Summary:    fmt.Sprintf("%d concurrent requests, %.1f%% errors, p95 %.1fms", concurrency, errorRate, p95),
		Probes:     probes,
		Metrics: map[string]any{
			"p50_ms": percentile(latencies, 50), "p95_ms": p95, "p99_ms": percentile(latencies, 99),
			"error_rate_pct": errorRate,
			"tests_run":      concurrency, "tests_passed": passed, "tests_failed": failed,
		},
		StartedAt:  start.UTC().Format(time.RFC3339),
		DurationMs: float64(time.Since(start).Milliseconds()),
	}
}

// runCascade probes endpoints sequentially so the first failure point and
// everything downstream of it stay visible in order.
func (e *Engine) runCascade(ctx context.Context, strat models.TestStrategy) models.StrategyResult {
	start := time.Now()
	probes := make([]models.ProbeResult, 0, len(strat.Endpoints)+1)
	passed := 0
	cascade := false

	for _, path := range strat.Endpoints {
		p := e.probe(ctx, path)
		probes = append(probes, p)
		if p.OK {
			passed++
		} else {
			cascade = true
		}
	}

	trigger := models.ProbeResult{Endpoint: "cascade_analysis", OK: !cascade}
	if cascade {
		trigger.Error = "Cascade failure detected: downstream propagation possible"
	}
	probes = append(probes, trigger)

	status := "passed"
	if cascade {
		status = "partial"
		if passed == 0 {
			status = "failed"
		}
	}

	return models.StrategyResult{
		StrategyID: strat.ID,
		Name:       strat.Name,
		Type:       strat.Type,
		Target:     strat.Target,
		Status:     status,
		Summary:    fmt.Sprintf("%d/%d chain hops reachable", passed, len(strat.Endpoints)),
		Probes:     probes,
		Metrics: map[string]any{
			"tests_run": len(strat.Endpoints), "tests_passed": passed,
			"tests_failed": len(strat.Endpoints) - passed,
			"cascade_triggered": cascade,
		},
		StartedAt:  start.UTC().Format(time.RFC3339),
		DurationMs: float64(time.Since(start).Milliseconds()),
	}
}

// recommend maps non-passing results to plain-English follow-ups.
func recommend(results []models.StrategyResult) []string {
	var recs []string
	for _, r := range results {
		switch {
		case r.Type == TypeLatencyProbe && r.Status == "failed":
			recs = append(recs, fmt.Sprintf(
				"P99 latency on %s is critical: review recent deployments and DB query plans.", r.Target))
		case r.Type == TypeLoadBurst && r.Status != "passed":
			recs = append(recs, fmt.Sprintf(
				"Load burst on %s shows %v%% error rate: consider horizontal scaling or rate limiting.",
				r.Target, r.Metrics["error_rate_pct"]))
		case r.Type == TypeCascadeSim && r.Status != "passed":
			recs = append(recs, fmt.Sprintf(
				"Cascade simulation on %s detected propagation risk: add circuit breakers on downstream calls.", r.Target))
		case r.Type == TypeHealthSweep && r.Status != "passed":
			var failedEps []string
			for _, p := range r.Probes {
				if !p.OK {
					failedEps = append(failedEps, p.Endpoint)
				}
			}
			recs = append(recs, fmt.Sprintf(
				"Health sweep failures: %s. Check service health and network routing.",
				strings.Join(failedEps, ", ")))
		}
	}
	return recs
}

// percentile uses the classical index max(0, floor(n*p/100)-1).
func percentile(samples []float64, p int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := len(sorted)*p/100 - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func bandFor(passed, failed int) string {
	switch {
	case failed == 0:
		return "passed"
	case passed == 0:
		return "failed"
	default:
		return "partial"
	}
}

func countOK(probes []models.ProbeResult) int {
	n := 0
	for _, p := range probes {
		if p.OK {
			n++
		}
	}
	return n
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func corePaths() []string {
	paths := make([]string, len(CoreEndpoints))
	for i, ep := range CoreEndpoints {
		paths[i] = ep.Path
	}
	return paths
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newStrategyID() string {
	return "strat-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
