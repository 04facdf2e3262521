package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type runTestsRequest struct {
	StrategyIDs []string `json:"strategy_ids"`
}

// testStrategies lists the test plans derived from current memory.
func (s *Server) testStrategies(c *gin.Context) {
	insights := s.store.GetAllInsights("")
	patterns := s.store.GetAllPatterns()
	strategies := s.tester.Strategies()

	c.JSON(http.StatusOK, gin.H{
		"strategies":            strategies,
		"count":                 len(strategies),
		"derived_from_insights": len(insights),
		"derived_from_patterns": len(patterns),
	})
}

// runNetworkTests executes strategies and streams the report back in chunks.
func (s *Server) runNetworkTests(c *gin.Context) {
	var req runTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}

	report, err := s.tester.RunTests(c.Request.Context(), req.StrategyIDs)
	if err != nil {
		s.writeError(c, err)
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		s.writeError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	const chunkSize = 4096
	for off := 0; off < len(payload); off += chunkSize {
		end := min(off+chunkSize, len(payload))
		c.Writer.Write(payload[off:end])
		c.Writer.Flush()
	}
}

// testResults returns the most recent report, or a placeholder.
func (s *Server) testResults(c *gin.Context) {
	report := s.tester.LastReport()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{
			"run_id":          nil,
			"overall_status":  "not_run",
			"passed":          0,
			"failed":          0,
			"partial":         0,
			"results":         []any{},
			"recommendations": []any{},
			"message":         "No tests run yet. POST to /api/network-test/run to start.",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}
