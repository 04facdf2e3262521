package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// listActions returns the most recent remediation actions.
func (s *Server) listActions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}

	recent := s.actions.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"actions": recent, "total": len(recent)})
}

// clearActions resets the action history, for demo resets.
func (s *Server) clearActions(c *gin.Context) {
	s.actions.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
