// Package actions journals every remediation action the platform takes,
// successful or not, with stable identifiers.
package actions

import (
	"strings"
	"sync"

	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/google/uuid"
)

// Action types.
const (
	TypeScaleECS       = "scale_ecs"
	TypeRollbackDeploy = "rollback_deploy"
	TypeUpdateParam    = "update_ssm_param"
)

// Action statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Log is the process-wide action journal. Append-only, chronological.
type Log struct {
	mu      sync.Mutex
	records []models.ActionRecord
}

// NewLog creates an empty action log.
func NewLog() *Log {
	return &Log{}
}

// Record appends an action and returns its id.
func (l *Log) Record(actionType, service, status, reason string, result map[string]any) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := models.ActionRecord{
		ID:         strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		ActionType: actionType,
		Service:    service,
		Status:     status,
		Reason:     reason,
		Result:     result,
		Timestamp:  models.Now(),
	}
	l.records = append(l.records, rec)
	return rec.ID
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(limit int) []models.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ActionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Clear drops all records. Used by the demo reset endpoint.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
