package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/forge/pkg/models"
)

type graphNode struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Type         string  `json:"type"`
	Team         string  `json:"team"`
	Criticality  string  `json:"criticality"`
	HealthScore  float64 `json:"health_score"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	Color        string  `json:"color"`
	Val          int     `json:"val"`
}

type graphLink struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
	RPM          float64 `json:"rpm"`
}

func toGraphNode(n models.ServiceNode) graphNode {
	color := "#ef4444"
	switch {
	case n.HealthScore >= 80:
		color = "#22c55e"
	case n.HealthScore >= 50:
		color = "#f59e0b"
	}
	val := 5
	if n.Criticality == "critical" {
		val = 8
	}
	return graphNode{
		ID:           n.Name,
		Label:        n.Name,
		Type:         n.Type,
		Team:         n.Team,
		Criticality:  n.Criticality,
		HealthScore:  n.HealthScore,
		AvgLatencyMs: n.AvgLatencyMs,
		P99LatencyMs: n.P99LatencyMs,
		Color:        color,
		Val:          val,
	}
}

func toGraphLink(e models.DependencyEdge) graphLink {
	return graphLink{
		Source:       e.Source,
		Target:       e.Target,
		AvgLatencyMs: e.AvgLatencyMs,
		P99LatencyMs: e.P99LatencyMs,
		RPM:          e.RequestsPerMin,
	}
}

// fullGraph serves the complete dependency graph in force-graph format.
// The response is written node by node to keep memory flat on big graphs.
func (s *Server) fullGraph(c *gin.Context) {
	ctx := c.Request.Context()
	nodes, err := s.graph.ListServices(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	edges, err := s.graph.ListEdges(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := c.Writer
	w.WriteString(`{"nodes":[`)
	for i, n := range nodes {
		if i > 0 {
			w.WriteString(",")
		}
		data, _ := json.Marshal(toGraphNode(n))
		w.Write(data)
	}
	w.WriteString(`],"links":[`)
	for i, e := range edges {
		if i > 0 {
			w.WriteString(",")
		}
		data, _ := json.Marshal(toGraphLink(e))
		w.Write(data)
	}
	w.WriteString("]}")
	w.Flush()
}

// serviceSubgraph returns the ego-graph around one service, undirected,
// up to the requested hop count.
func (s *Server) serviceSubgraph(c *gin.Context) {
	name := c.Param("name")
	hops, err := strconv.Atoi(c.DefaultQuery("hops", "2"))
	if err != nil || hops < 1 {
		hops = 2
	}

	ctx := c.Request.Context()
	if _, err := s.graph.ServiceHealth(ctx, name); err != nil {
		s.writeError(c, err)
		return
	}

	nodes, err := s.graph.ListServices(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	edges, err := s.graph.ListEdges(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// BFS over the undirected edge set.
	neighbors := map[string][]string{}
	for _, e := range edges {
		neighbors[e.Source] = append(neighbors[e.Source], e.Target)
		neighbors[e.Target] = append(neighbors[e.Target], e.Source)
	}
	included := map[string]bool{name: true}
	frontier := []string{name}
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []string
		for _, svc := range frontier {
			for _, nb := range neighbors[svc] {
				if !included[nb] {
					included[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}

	outNodes := make([]graphNode, 0, len(included))
	for _, n := range nodes {
		if included[n.Name] {
			outNodes = append(outNodes, toGraphNode(n))
		}
	}
	outLinks := make([]graphLink, 0)
	for _, e := range edges {
		if included[e.Source] && included[e.Target] {
			outLinks = append(outLinks, toGraphLink(e))
		}
	}

	c.JSON(http.StatusOK, gin.H{"nodes": outNodes, "links": outLinks, "center": name})
}

// recentDeployments returns deployments inside the requested window.
func (s *Server) recentDeployments(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "12"))
	if err != nil || hours < 1 {
		hours = 12
	}

	all, err := s.graph.RecentDeployments(c.Request.Context(), 100)
	if err != nil {
		s.writeError(c, err)
		return
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	deployments := make([]models.Deployment, 0, len(all))
	for _, d := range all {
		at, err := time.Parse(time.RFC3339, d.DeployedAt)
		if err != nil || at.Before(cutoff) {
			continue
		}
		deployments = append(deployments, d)
	}

	c.JSON(http.StatusOK, gin.H{"deployments": deployments, "window_hours": hours})
}
