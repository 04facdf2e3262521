// Package graph provides access to the service-topology graph: node health,
// dependency edges, blast radius, and deployment history.
//
// The graph is an external read/write collaborator. The core depends only on
// the Adapter contract; implementations include an HTTP client against a
// remote graph service and an in-process graph used for demos and tests.
package graph

import (
	"context"

	"github.com/codeready-toolchain/forge/pkg/models"
)

// DependencyCall is one CALLS edge viewed from a service.
type DependencyCall struct {
	Service        string  `json:"service"`
	Type           string  `json:"type,omitempty"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms"`
	RequestsPerMin float64 `json:"rpm"`
}

// DependencyReport lists who calls a service and what it calls.
type DependencyReport struct {
	Service                string           `json:"service"`
	UpstreamCallers        []DependencyCall `json:"upstream_callers"`
	DownstreamDependencies []DependencyCall `json:"downstream_dependencies"`
}

// BlastEntry is one transitively affected caller.
type BlastEntry struct {
	Service     string `json:"service"`
	Criticality string `json:"criticality"`
	Team        string `json:"team"`
	Hops        int    `json:"hops"`
}

// BlastRadiusReport lists every service that transitively calls the root,
// up to the hop cap.
type BlastRadiusReport struct {
	RootService      string       `json:"root_service"`
	AffectedUpstream []BlastEntry `json:"affected_upstream"`
	TotalAffected    int          `json:"total_affected"`
}

// Adapter is the topology contract the core depends on. Arbitrary graph
// queries are deliberately not part of it; only this fixed vocabulary.
type Adapter interface {
	ServiceHealth(ctx context.Context, name string) (*models.ServiceNode, error)
	Dependencies(ctx context.Context, name string) (*DependencyReport, error)
	BlastRadius(ctx context.Context, name string, maxHops int) (*BlastRadiusReport, error)
	RecentChanges(ctx context.Context, name string, hours int) ([]models.Deployment, error)
	SlowestDependencies(ctx context.Context, name string) ([]DependencyCall, error)
	WriteMetrics(ctx context.Context, name string, fields map[string]any) error
	ListServices(ctx context.Context) ([]models.ServiceNode, error)
	ListEdges(ctx context.Context) ([]models.DependencyEdge, error)
	RecordDeployment(ctx context.Context, service, version, status string) (*models.Deployment, error)
	RecentDeployments(ctx context.Context, limit int) ([]models.Deployment, error)
}
