// Package activity keeps a bounded in-memory ring of recent agent events
// (tool calls, stored insights, analyses, errors) for a polling UI.
package activity

import (
	"sync"

	"github.com/codeready-toolchain/forge/pkg/models"
)

const (
	// Capacity bounds the ring; older entries are evicted.
	Capacity = 200

	// MaxDetailLen truncates oversized detail payloads.
	MaxDetailLen = 500
)

// Event types.
const (
	EventToolCall      = "tool_call"
	EventInsightStored = "insight_stored"
	EventPatternStored = "pattern_stored"
	EventAnalysis      = "analysis"
	EventError         = "error"
	EventMinimax       = "minimax"
)

// Sources.
const (
	SourcePrimary    = "primary"
	SourceBackground = "background"
	SourceSystem     = "system"
)

// Log is the process-wide activity ring. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
	nextID  int
}

// NewLog creates an empty activity log.
func NewLog() *Log {
	return &Log{nextID: 1}
}

// Add appends an entry and returns its id. Ids are strictly monotonic and
// never reused, even after eviction.
func (l *Log) Add(eventType, source, summary, detail string, metadata map[string]any) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(detail) > MaxDetailLen {
		detail = detail[:MaxDetailLen]
	}
	e := models.ActivityEntry{
		ID:        l.nextID,
		Timestamp: models.Now(),
		EventType: eventType,
		Source:    source,
		Summary:   summary,
		Detail:    detail,
		Metadata:  metadata,
	}
	l.nextID++
	l.entries = append(l.entries, e)
	if len(l.entries) > Capacity {
		l.entries = l.entries[len(l.entries)-Capacity:]
	}
	return e.ID
}

// Recent returns entries with id > sinceID, newest first, capped at limit.
func (l *Log) Recent(sinceID, limit int) []models.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]models.ActivityEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].ID <= sinceID {
			break
		}
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the current number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
