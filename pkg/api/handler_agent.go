package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type analyzeRequest struct {
	Service string `json:"service" binding:"required"`
	Trigger string `json:"trigger"`
}

type chatRequest struct {
	Message string         `json:"message" binding:"required"`
	Context map[string]any `json:"context"`
}

// analyzeService runs the full agent analysis loop on one service.
func (s *Server) analyzeService(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := s.agent.AnalyzeService(c.Request.Context(), req.Service)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// chat streams agent responses as SSE frames {type: text|error|done}.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")

	chunks, err := s.agent.Chat(c.Request.Context(), req.Message, req.Context)
	if err != nil {
		writeSSE(c, gin.H{"type": "error", "content": err.Error()})
		writeSSE(c, gin.H{"type": "done"})
		return
	}

	for chunk := range chunks {
		writeSSE(c, gin.H{"type": "text", "content": chunk})
	}
	writeSSE(c, gin.H{"type": "done"})
}

func writeSSE(c *gin.Context, frame gin.H) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// agentActivity is the live activity feed the frontend polls.
func (s *Server) agentActivity(c *gin.Context) {
	sinceID, _ := strconv.Atoi(c.DefaultQuery("since_id", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries := s.activity.Recent(sinceID, limit)
	c.JSON(http.StatusOK, gin.H{"activity": entries, "count": len(entries)})
}

// allServiceHealth is the fast poll endpoint for graph node colors.
func (s *Server) allServiceHealth(c *gin.Context) {
	nodes, err := s.graph.ListServices(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].HealthScore < nodes[j].HealthScore })

	services := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		services = append(services, gin.H{
			"service":        n.Name,
			"health_score":   n.HealthScore,
			"avg_latency_ms": n.AvgLatencyMs,
			"p99_latency_ms": n.P99LatencyMs,
			"updated_at":     n.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"services": services, "timestamp": float64(time.Now().UnixMilli()) / 1000})
}

// simulateDegrade artificially degrades a service to demo the analysis flow.
func (s *Server) simulateDegrade(c *gin.Context) {
	service := c.DefaultQuery("service", "payment-service")
	err := s.graph.WriteMetrics(c.Request.Context(), service, map[string]any{
		"health_score":   32.0,
		"avg_latency_ms": 1400.0,
		"p99_latency_ms": 4200.0,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"degraded": service, "health_score": 32, "p99_latency_ms": 4200})
}

// simulateRecover resets a service back to healthy.
func (s *Server) simulateRecover(c *gin.Context) {
	service := c.DefaultQuery("service", "payment-service")
	err := s.graph.WriteMetrics(c.Request.Context(), service, map[string]any{
		"health_score":   98.0,
		"avg_latency_ms": 80.0,
		"p99_latency_ms": 250.0,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovered": service, "health_score": 98, "p99_latency_ms": 250})
}
