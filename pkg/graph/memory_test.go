package graph

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededGraph(t *testing.T) *MemoryGraph {
	t.Helper()
	g := NewMemoryGraph()
	g.Seed()
	return g
}

func TestSeed_Idempotent(t *testing.T) {
	g := seededGraph(t)
	ctx := context.Background()

	before, err := g.ListServices(ctx)
	require.NoError(t, err)
	edgesBefore, err := g.ListEdges(ctx)
	require.NoError(t, err)
	depsBefore, err := g.RecentDeployments(ctx, 0)
	require.NoError(t, err)

	g.Seed()

	after, err := g.ListServices(ctx)
	require.NoError(t, err)
	edgesAfter, err := g.ListEdges(ctx)
	require.NoError(t, err)
	depsAfter, err := g.RecentDeployments(ctx, 0)
	require.NoError(t, err)

	assert.Len(t, after, len(before))
	assert.Len(t, edgesAfter, len(edgesBefore))
	assert.Len(t, depsAfter, len(depsBefore))
	assert.Len(t, after, 24)
}

func TestServiceHealth(t *testing.T) {
	g := seededGraph(t)
	ctx := context.Background()

	node, err := g.ServiceHealth(ctx, "payment-service")
	require.NoError(t, err)
	assert.Equal(t, 42.0, node.HealthScore)
	assert.Equal(t, 1800.0, node.P99LatencyMs)

	_, err = g.ServiceHealth(ctx, "no-such-service")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDependencies_Directions(t *testing.T) {
	g := seededGraph(t)

	report, err := g.Dependencies(context.Background(), "payment-service")
	require.NoError(t, err)

	upstream := map[string]bool{}
	for _, c := range report.UpstreamCallers {
		upstream[c.Service] = true
	}
	assert.True(t, upstream["checkout-service"])
	assert.True(t, upstream["wallet-service"])

	downstream := map[string]bool{}
	for _, c := range report.DownstreamDependencies {
		downstream[c.Service] = true
	}
	assert.True(t, downstream["payment-gateway"])
	assert.True(t, downstream["postgres-orders"])
}

func TestBlastRadius_HopCapAndDedup(t *testing.T) {
	g := seededGraph(t)
	ctx := context.Background()

	one, err := g.BlastRadius(ctx, "payment-service", 1)
	require.NoError(t, err)
	for _, e := range one.AffectedUpstream {
		assert.Equal(t, 1, e.Hops)
	}

	three, err := g.BlastRadius(ctx, "payment-service", 3)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, three.TotalAffected, one.TotalAffected)

	seen := map[string]bool{}
	for _, e := range three.AffectedUpstream {
		assert.False(t, seen[e.Service], "duplicate %s", e.Service)
		seen[e.Service] = true
	}
	// api-gateway reaches payment-service via order-service -> checkout-service.
	assert.True(t, seen["api-gateway"])
}

func TestBlastRadius_TerminatesOnCycles(t *testing.T) {
	g := NewMemoryGraph()
	g.UpsertService(models.ServiceNode{Name: "a"})
	g.UpsertService(models.ServiceNode{Name: "b"})
	g.UpsertEdge(models.DependencyEdge{Source: "a", Target: "b"})
	g.UpsertEdge(models.DependencyEdge{Source: "b", Target: "a"})

	report, err := g.BlastRadius(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalAffected)
	assert.Equal(t, "b", report.AffectedUpstream[0].Service)
}

func TestSlowestDependencies_Ranked(t *testing.T) {
	g := seededGraph(t)

	deps, err := g.SlowestDependencies(context.Background(), "payment-service")
	require.NoError(t, err)
	require.NotEmpty(t, deps)
	assert.Equal(t, "payment-gateway", deps[0].Service)
	for i := 1; i < len(deps); i++ {
		assert.GreaterOrEqual(t, deps[i-1].P99LatencyMs, deps[i].P99LatencyMs)
	}
}

func TestRecentChanges_WindowAndScope(t *testing.T) {
	g := seededGraph(t)

	changes, err := g.RecentChanges(context.Background(), "payment-service", 6)
	require.NoError(t, err)

	versions := map[string]bool{}
	for _, c := range changes {
		versions[c.Version] = true
	}
	// v2.3.1 (2h ago) and v2.3.0 (6h ago boundary excluded or included by clock
	// skew; the suspicious one must be there).
	assert.True(t, versions["v2.3.1"])
	// 48h-old deployments are out of a 6h window.
	assert.False(t, versions["v2.2.0"])
}

func TestWriteMetrics_UpdatesNode(t *testing.T) {
	g := seededGraph(t)
	ctx := context.Background()

	err := g.WriteMetrics(ctx, "payment-service", map[string]any{
		"health_score":   88.0,
		"p99_latency_ms": 240.0,
		"data_source":    "datadog",
	})
	require.NoError(t, err)

	node, err := g.ServiceHealth(ctx, "payment-service")
	require.NoError(t, err)
	assert.Equal(t, 88.0, node.HealthScore)
	assert.Equal(t, 240.0, node.P99LatencyMs)
	assert.Equal(t, "datadog", node.DataSource)
}

func TestRecordDeployment_AppendOnly(t *testing.T) {
	g := NewMemoryGraph()
	ctx := context.Background()

	d1, err := g.RecordDeployment(ctx, "svc-a", "v1.0.0", "")
	require.NoError(t, err)
	assert.Equal(t, "success", d1.Status)

	d2, err := g.RecordDeployment(ctx, "svc-a", "v1.0.1", "failed")
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID, d2.ID)

	recent, err := g.RecentDeployments(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
