package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

type deployPayload struct {
	Service string `json:"service" binding:"required"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type metricsSyncPayload struct {
	Services []string `json:"services"`
}

type scalePayload struct {
	Service                  string `json:"service" binding:"required"`
	Cluster                  string `json:"cluster"`
	Direction                string `json:"direction"`
	InstanceCount            int    `json:"instance_count"`
	Reason                   string `json:"reason"`
	RunStabilityTest         *bool  `json:"run_stability_test"`
	StabilizationWaitSeconds int    `json:"stabilization_wait_seconds"`
}

// deployHook records a deployment and queues follow-up analysis.
func (s *Server) deployHook(c *gin.Context) {
	var req deployPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = "success"
	}

	if _, err := s.graph.RecordDeployment(c.Request.Context(), req.Service, req.Version, req.Status); err != nil {
		s.writeError(c, err)
		return
	}

	s.coord.Enqueue(req.Service, models.TaskAnalyze, 0)
	s.coord.Enqueue(req.Service, models.TaskGenerateInsights, 1)

	c.JSON(http.StatusOK, gin.H{
		"status":  "accepted",
		"message": fmt.Sprintf("Deployment logged and analysis queued for %s", req.Service),
	})
}

// metricsSyncHook pulls live metrics for each service, writes them back to
// the graph, refreshes baselines, and flags anomalies as insights.
func (s *Server) metricsSyncHook(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no metrics backend configured"})
		return
	}

	var req metricsSyncPayload
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	targets := req.Services
	if len(targets) == 0 {
		nodes, err := s.graph.ListServices(ctx)
		if err != nil {
			s.writeError(c, err)
			return
		}
		for _, n := range nodes {
			targets = append(targets, n.Name)
		}
	}
	if len(targets) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "services_updated": 0, "message": "No services in graph yet"})
		return
	}

	updated := 0
	anomalies := []gin.H{}
	for _, svc := range targets {
		m, err := s.metrics.LiveMetricsForService(ctx, svc)
		if err != nil {
			s.logger.Warn("metrics sync skipped service", "service", svc, "error", err)
			continue
		}

		err = s.graph.WriteMetrics(ctx, svc, map[string]any{
			"p99_latency_ms":    m.P99LatencyMs,
			"avg_latency_ms":    m.AvgLatencyMs,
			"health_score":      m.HealthScore,
			"cpu_usage_percent": m.CPUUsagePercent,
			"mem_usage_percent": m.MemUsagePercent,
			"data_source":       "datadog_live",
		})
		if err != nil {
			s.logger.Warn("metrics writeback failed", "service", svc, "error", err)
			continue
		}

		if m.HealthScore < 60 || m.P99LatencyMs > 1000 {
			severity := models.SeverityMedium
			if m.P99LatencyMs > 1000 || m.HealthScore < 40 {
				severity = models.SeverityHigh
			}
			evidence, _ := json.Marshal(gin.H{
				"p99_latency_ms": m.P99LatencyMs,
				"avg_latency_ms": m.AvgLatencyMs,
				"health_score":   m.HealthScore,
				"cpu":            m.CPUUsagePercent,
				"mem":            m.MemUsagePercent,
			})
			if _, err := s.store.AddInsight(svc, models.Insight{
				Category: models.CategoryPerformance,
				Severity: severity,
				Title:    fmt.Sprintf("Elevated p99 latency from live sync (%.0fms)", m.P99LatencyMs),
				Insight: fmt.Sprintf("Live sync measured p99=%.0fms, avg=%.0fms for %s. Health score: %.0f. CPU: %.0f%%, Mem: %.0f%%.",
					m.P99LatencyMs, m.AvgLatencyMs, svc, m.HealthScore, m.CPUUsagePercent, m.MemUsagePercent),
				Evidence:       string(evidence),
				Recommendation: "Investigate slow dependencies and consider scaling or circuit breakers.",
			}); err != nil {
				s.writeError(c, err)
				return
			}
			anomalies = append(anomalies, gin.H{"service": svc, "p99": m.P99LatencyMs, "score": m.HealthScore})
		}

		if err := s.store.UpdateBaseline(svc, models.Baseline{
			"p99_latency_ms": m.P99LatencyMs,
			"avg_latency_ms": m.AvgLatencyMs,
			"health_score":   m.HealthScore,
		}); err != nil {
			s.writeError(c, err)
			return
		}
		updated++
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"data_source":        "datadog_live",
		"services_updated":   updated,
		"anomalies_detected": len(anomalies),
		"anomalies":          anomalies,
	})
}

// scaleHook runs the full scale-and-validate pipeline: scale the service,
// optionally measure network stability before and after, write the new
// state to the graph, and flag instability as a reliability insight.
func (s *Server) scaleHook(c *gin.Context) {
	var req scalePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Cluster == "" {
		req.Cluster = "forge-prod-cluster"
	}
	if req.Direction == "" {
		req.Direction = "up"
	}
	if req.InstanceCount == 0 {
		req.InstanceCount = 4
	}
	if req.Reason == "" {
		req.Reason = "triggered via hook"
	}
	if req.StabilizationWaitSeconds == 0 {
		req.StabilizationWaitSeconds = 30
	}
	runStability := req.RunStabilityTest == nil || *req.RunStabilityTest

	ctx := c.Request.Context()

	// The most recent scale action for this service tells us the replica
	// count we are scaling from.
	instanceBefore := 2
	for _, a := range s.actions.Recent(50) {
		if a.ActionType == actions.TypeScaleECS && a.Service == req.Service {
			if v, ok := toInt(a.Result["new_desired_count"]); ok {
				instanceBefore = v
			}
			break
		}
	}

	scaleResult, err := s.rem.ScaleService(ctx, req.Cluster, req.Service, req.InstanceCount, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var stability *validation.StabilityResult
	if runStability {
		stability, err = s.val.ValidateScaleStability(ctx, req.Service, req.Direction,
			instanceBefore, req.InstanceCount, req.StabilizationWaitSeconds, "")
		if err != nil {
			s.writeError(c, err)
			return
		}
	}

	err = s.graph.WriteMetrics(ctx, req.Service, map[string]any{
		"replica_count":   req.InstanceCount,
		"last_scaled_at":  models.Now(),
		"scale_direction": req.Direction,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	verdict := "Stability test skipped"
	var networkStable any
	if stability != nil {
		networkStable = stability.NetworkStable
		if stability.NetworkStable {
			verdict = fmt.Sprintf("Network stable after scale-%s", req.Direction)
		} else {
			verdict = fmt.Sprintf("Network instability detected after scale-%s", req.Direction)
			evidence, _ := json.Marshal(gin.H{
				"pre_scale":  stability.Phase1PreScale,
				"post_scale": stability.Phase2PostScale,
			})
			if _, err := s.store.AddInsight(req.Service, models.Insight{
				Category: models.CategoryReliability,
				Severity: models.SeverityHigh,
				Title:    fmt.Sprintf("Network instability detected after scale-%s", req.Direction),
				Insight: fmt.Sprintf("After scaling %s from %d to %d replicas (scale-%s), network stability tests detected a regression. Pass rate delta: %.1f%%. P99 delta: %.1f%%.",
					req.Service, instanceBefore, req.InstanceCount, req.Direction,
					stability.PassRateDeltaPct, stability.P99DeltaPct),
				Evidence:       string(evidence),
				Recommendation: "Consider reverting the scale event or investigating service discovery and load balancer health check configuration.",
			}); err != nil {
				s.writeError(c, err)
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"service":         req.Service,
		"direction":       req.Direction,
		"instance_before": instanceBefore,
		"instance_after":  req.InstanceCount,
		"scale_result":    scaleResult,
		"stability_test":  stability,
		"network_stable":  networkStable,
		"verdict":         verdict,
	})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
