package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/forge/pkg/models"
)

type enqueueRequest struct {
	ServiceName string `json:"service_name" binding:"required"`
	TaskType    string `json:"task_type"`
	Priority    int    `json:"priority"`
}

type simulateLoadRequest struct {
	Count int `json:"count"`
}

type completeRequest struct {
	Success *bool `json:"success"`
}

type scaleRequest struct {
	Direction string `json:"direction" binding:"required"`
	Reason    string `json:"reason"`
}

func (s *Server) clusterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Status())
}

// clusterTick runs one MAPE-K iteration and any validation it scheduled.
func (s *Server) clusterTick(c *gin.Context) {
	result := s.coord.Tick()
	result.Validation = s.coord.RunPendingValidation(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (s *Server) clusterEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	item, depth := s.coord.Enqueue(req.ServiceName, req.TaskType, req.Priority)
	c.JSON(http.StatusOK, gin.H{"status": "enqueued", "work_item": item, "queue_depth": depth})
}

// clusterSimulateLoad floods the queue and runs the scaling loop end to end.
func (s *Server) clusterSimulateLoad(c *gin.Context) {
	var req simulateLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}

	itemIDs, results := s.coord.SimulateLoad(req.Count)
	validation := s.coord.RunPendingValidation(c.Request.Context())

	var scaleActions []string
	for _, r := range results {
		if r.Action != "none" {
			scaleActions = append(scaleActions, r.Action)
		}
	}
	var last any
	if len(results) > 0 {
		last = results[len(results)-1]
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "load_simulated",
		"items_enqueued": len(itemIDs),
		"scale_actions":  scaleActions,
		"final_replicas": s.coord.Status()["total_replicas"],
		"mape_k_result":  last,
		"validation":     validation,
	})
}

// clusterValidate triggers a manual network sweep and records the result.
func (s *Server) clusterValidate(c *gin.Context) {
	result, err := s.val.NetworkAfterScale(c.Request.Context(), "manual", "api-manual")
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.coord.RecordValidation(result)
	c.JSON(http.StatusOK, result)
}

func (s *Server) clusterValidations(c *gin.Context) {
	validations, total := s.coord.Validations(10)
	c.JSON(http.StatusOK, gin.H{"validations": validations, "count": total})
}

func (s *Server) clusterComplete(c *gin.Context) {
	workID := c.Param("id")
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}
	success := req.Success == nil || *req.Success

	if !s.coord.CompleteWork(workID, success) {
		c.JSON(http.StatusNotFound, gin.H{"error": "work item " + workID + " not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "work_id": workID, "success": success})
}

func (s *Server) clusterEvents(c *gin.Context) {
	events := s.coord.ScaleEvents()
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// clusterReport is the digest view for dashboards.
func (s *Server) clusterReport(c *gin.Context) {
	status := s.coord.Status()
	completed := s.coord.CompletedWork()
	if len(completed) > 10 {
		completed = completed[:10]
	}
	if completed == nil {
		completed = []models.WorkItem{}
	}

	c.JSON(http.StatusOK, gin.H{
		"cluster":        status,
		"completed_work": completed,
		"generated_at":   models.Now(),
	})
}

// clusterScale forces a manual spawn or kill, then validates.
func (s *Server) clusterScale(c *gin.Context) {
	var req scaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	action, err := s.coord.ScaleManually(req.Direction, req.Reason)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "scaled",
		"action":     action,
		"validation": s.coord.RunPendingValidation(c.Request.Context()),
	})
}
