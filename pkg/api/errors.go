package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/forge/pkg/errs"
)

// writeError maps component errors to HTTP status codes. Only the status
// matters to callers; messages are informational.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindStorage:
		status = http.StatusInternalServerError
	case errs.KindGraph, errs.KindMetrics, errs.KindRemediation, errs.KindValidation:
		status = http.StatusBadGateway
	}
	if errors.Is(err, errs.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
