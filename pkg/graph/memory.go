package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
)

// MemoryGraph is an in-process Adapter implementation used for demos and
// tests. Topology lives in maps guarded by one mutex; cycles are legal.
type MemoryGraph struct {
	mu          sync.RWMutex
	nodes       map[string]*models.ServiceNode
	edges       []models.DependencyEdge
	deployments []models.Deployment
	depSeq      int
}

// NewMemoryGraph creates an empty in-process graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{nodes: map[string]*models.ServiceNode{}}
}

// UpsertService inserts or updates a node keyed by name.
func (g *MemoryGraph) UpsertService(node models.ServiceNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node.UpdatedAt = models.Now()
	g.nodes[node.Name] = &node
}

// UpsertEdge inserts or updates a CALLS edge keyed by (source, target).
func (g *MemoryGraph) UpsertEdge(edge models.DependencyEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.edges {
		if g.edges[i].Source == edge.Source && g.edges[i].Target == edge.Target {
			g.edges[i] = edge
			return
		}
	}
	g.edges = append(g.edges, edge)
}

func (g *MemoryGraph) ServiceHealth(_ context.Context, name string) (*models.ServiceNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("service %q: %w", name, errs.ErrNotFound)
	}
	out := *node
	return &out, nil
}

func (g *MemoryGraph) Dependencies(_ context.Context, name string) (*DependencyReport, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	report := &DependencyReport{Service: name}
	for _, e := range g.edges {
		if e.Target == name {
			report.UpstreamCallers = append(report.UpstreamCallers, DependencyCall{
				Service:        e.Source,
				AvgLatencyMs:   e.AvgLatencyMs,
				P99LatencyMs:   e.P99LatencyMs,
				RequestsPerMin: e.RequestsPerMin,
			})
		}
		if e.Source == name {
			call := DependencyCall{
				Service:        e.Target,
				AvgLatencyMs:   e.AvgLatencyMs,
				P99LatencyMs:   e.P99LatencyMs,
				RequestsPerMin: e.RequestsPerMin,
			}
			if dep, ok := g.nodes[e.Target]; ok {
				call.Type = dep.Type
			}
			report.DownstreamDependencies = append(report.DownstreamDependencies, call)
		}
	}
	sort.SliceStable(report.UpstreamCallers, func(i, j int) bool {
		return report.UpstreamCallers[i].RequestsPerMin > report.UpstreamCallers[j].RequestsPerMin
	})
	sort.SliceStable(report.DownstreamDependencies, func(i, j int) bool {
		return report.DownstreamDependencies[i].AvgLatencyMs > report.DownstreamDependencies[j].AvgLatencyMs
	})
	return report, nil
}

// BlastRadius walks CALLS edges upstream with a breadth-first traversal.
// Visited nodes are deduped so cyclic topologies terminate; the hop cap
// bounds the frontier.
func (g *MemoryGraph) BlastRadius(_ context.Context, name string, maxHops int) (*BlastRadiusReport, error) {
	if maxHops <= 0 {
		maxHops = 3
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[name]; !ok {
		return nil, fmt.Errorf("service %q: %w", name, errs.ErrNotFound)
	}

	callers := map[string][]string{}
	for _, e := range g.edges {
		callers[e.Target] = append(callers[e.Target], e.Source)
	}

	visited := map[string]int{name: 0}
	frontier := []string{name}
	var affected []BlastEntry
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, caller := range callers[cur] {
				if _, seen := visited[caller]; seen {
					continue
				}
				visited[caller] = hop
				next = append(next, caller)
				entry := BlastEntry{Service: caller, Hops: hop}
				if node, ok := g.nodes[caller]; ok {
					entry.Criticality = node.Criticality
					entry.Team = node.Team
				}
				affected = append(affected, entry)
			}
		}
		frontier = next
	}

	sort.SliceStable(affected, func(i, j int) bool {
		if affected[i].Hops != affected[j].Hops {
			return affected[i].Hops < affected[j].Hops
		}
		return affected[i].Service < affected[j].Service
	})
	return &BlastRadiusReport{
		RootService:      name,
		AffectedUpstream: affected,
		TotalAffected:    len(affected),
	}, nil
}

// RecentChanges returns deployments within the window for the service and
// its direct downstream dependencies, newest first.
func (g *MemoryGraph) RecentChanges(_ context.Context, name string, hours int) ([]models.Deployment, error) {
	if hours <= 0 {
		hours = 6
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	scope := map[string]bool{name: true}
	for _, e := range g.edges {
		if e.Source == name {
			scope[e.Target] = true
		}
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var out []models.Deployment
	for _, d := range g.deployments {
		if !scope[d.Service] {
			continue
		}
		at, err := time.Parse(time.RFC3339, d.DeployedAt)
		if err != nil || at.Before(since) {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeployedAt > out[j].DeployedAt })
	return out, nil
}

func (g *MemoryGraph) SlowestDependencies(ctx context.Context, name string) ([]DependencyCall, error) {
	report, err := g.Dependencies(ctx, name)
	if err != nil {
		return nil, err
	}
	deps := append([]DependencyCall(nil), report.DownstreamDependencies...)
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].P99LatencyMs > deps[j].P99LatencyMs })
	return deps, nil
}

// WriteMetrics updates node fields from a metric sync. Unknown services are
// created so a sync can introduce services the seed never saw.
func (g *MemoryGraph) WriteMetrics(_ context.Context, name string, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[name]
	if !ok {
		node = &models.ServiceNode{Name: name, Type: "internal", Criticality: "medium"}
		g.nodes[name] = node
	}
	for k, v := range fields {
		f, isNum := toFloat(v)
		switch k {
		case "health_score":
			if isNum {
				node.HealthScore = f
			}
		case "avg_latency_ms":
			if isNum {
				node.AvgLatencyMs = f
			}
		case "p99_latency_ms":
			if isNum {
				node.P99LatencyMs = f
			}
		case "cpu_usage_percent":
			if isNum {
				node.CPUUsagePercent = f
			}
		case "mem_usage_percent":
			if isNum {
				node.MemUsagePercent = f
			}
		case "data_source":
			if s, ok := v.(string); ok {
				node.DataSource = s
			}
		}
	}
	node.UpdatedAt = models.Now()
	return nil
}

func (g *MemoryGraph) ListServices(_ context.Context) ([]models.ServiceNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.ServiceNode, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, *node)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *MemoryGraph) ListEdges(_ context.Context) ([]models.DependencyEdge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]models.DependencyEdge(nil), g.edges...), nil
}

func (g *MemoryGraph) RecordDeployment(_ context.Context, service, version, status string) (*models.Deployment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if status == "" {
		status = "success"
	}
	d := models.Deployment{
		ID:         fmt.Sprintf("dep-%04d", g.depSeq),
		Service:    service,
		Version:    version,
		Status:     status,
		DeployedAt: models.Now(),
		DeployedBy: "github-actions",
	}
	g.depSeq++
	g.deployments = append(g.deployments, d)
	return &d, nil
}

func (g *MemoryGraph) RecentDeployments(_ context.Context, limit int) ([]models.Deployment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := append([]models.Deployment(nil), g.deployments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeployedAt > out[j].DeployedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// addDeployment backfills a deployment with an explicit timestamp. Seed only.
func (g *MemoryGraph) addDeployment(service, version, status string, deployedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := fmt.Sprintf("dep-%04d", g.depSeq)
	for i := range g.deployments {
		if g.deployments[i].Service == service && g.deployments[i].Version == version {
			g.deployments[i].Status = status
			return
		}
	}
	g.depSeq++
	g.deployments = append(g.deployments, models.Deployment{
		ID:         id,
		Service:    service,
		Version:    version,
		Status:     status,
		DeployedAt: deployedAt.UTC().Format(time.RFC3339),
		DeployedBy: "github-actions",
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
