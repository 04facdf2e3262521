package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type generateInsightsRequest struct {
	ServiceName string `json:"service_name"`
}

type insightStatusUpdate struct {
	Status string `json:"status" binding:"required"`
}

// listInsights returns every stored insight, optionally filtered.
func (s *Server) listInsights(c *gin.Context) {
	insights := s.store.GetAllInsights(c.Query("status"))

	if severity := c.Query("severity"); severity != "" {
		filtered := insights[:0]
		for _, i := range insights {
			if i.Severity == severity {
				filtered = append(filtered, i)
			}
		}
		insights = filtered
	}
	if category := c.Query("category"); category != "" {
		filtered := insights[:0]
		for _, i := range insights {
			if i.Category == category {
				filtered = append(filtered, i)
			}
		}
		insights = filtered
	}

	c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
}

// listPatterns returns service-level and global patterns.
func (s *Server) listPatterns(c *gin.Context) {
	patterns := s.store.GetAllPatterns()
	c.JSON(http.StatusOK, gin.H{"patterns": patterns, "count": len(patterns)})
}

// listRecommendations returns open high and critical insights.
func (s *Server) listRecommendations(c *gin.Context) {
	recs := s.store.GetRecommendations()
	c.JSON(http.StatusOK, gin.H{"recommendations": recs, "count": len(recs)})
}

// generateInsights triggers the agent to analyze one or all services.
func (s *Server) generateInsights(c *gin.Context) {
	var req generateInsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}

	result, err := s.agent.GenerateInsights(c.Request.Context(), req.ServiceName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

// patchInsight updates an insight's lifecycle status.
func (s *Server) patchInsight(c *gin.Context) {
	id := c.Param("id")
	var req insightStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	found, err := s.store.UpdateInsightStatus(id, req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "insight " + id + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "insight_id": id, "new_status": req.Status})
}

// serviceInsights returns everything the store holds for one service.
func (s *Server) serviceInsights(c *gin.Context) {
	service := c.Param("service")
	mem := s.store.GetServiceMemory(service)
	c.JSON(http.StatusOK, gin.H{
		"service":          service,
		"baseline_metrics": mem.BaselineMetrics,
		"patterns":         mem.Patterns,
		"insights":         mem.Insights,
		"pattern_count":    len(mem.Patterns),
		"insight_count":    len(mem.Insights),
	})
}
