package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/forge/pkg/activity"
)

func TestBackgroundDeepening_StoresMarkedFindings(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{
		// Primary analysis answers immediately.
		{text: `{"run_id": "r1", "service": "payment-service", "health_score": 65,
			"status": "degraded", "chat_summary": "degraded"}`},
		// Background pass returns deeper findings, wrapped in thinking tags
		// the transport has already stripped upstream; here plain JSON.
		{text: `{"deep_insights": [{"category": "reliability", "severity": "high",
			"title": "Retry amplification", "insight": "retries triple load",
			"recommendation": "cap retries at 2"}],
			"patterns": [{"type": "retry_storm", "description": "retries spike on timeout",
			"confidence": 0.8, "recommendation": "add jitter"}]}`},
	}}

	o, store, act := newTestOrchestrator(t, client)
	_, err := o.AnalyzeService(context.Background(), "payment-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	mem := store.GetServiceMemory("payment-service")

	var marked bool
	for _, ins := range mem.Insights {
		if strings.HasPrefix(ins.Title, "[MiniMax] ") {
			marked = true
			assert.Equal(t, "Retry amplification", strings.TrimPrefix(ins.Title, "[MiniMax] "))
		}
	}
	assert.True(t, marked, "background insight not stored")

	var pattern bool
	for _, p := range mem.Patterns {
		if p.Type == "retry_storm" {
			pattern = true
			assert.True(t, strings.HasPrefix(p.Description, "[MiniMax] "))
		}
	}
	assert.True(t, pattern, "background pattern not stored")

	var minimaxEvent bool
	for _, e := range act.Recent(0, 100) {
		if e.EventType == activity.EventMinimax {
			minimaxEvent = true
			assert.Equal(t, activity.SourceBackground, e.Source)
		}
	}
	assert.True(t, minimaxEvent)
}

func TestBackgroundDeepening_UnparseableNeverFails(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{
		{text: `{"run_id": "r1", "service": "auth-service", "health_score": 95,
			"status": "healthy", "chat_summary": "fine"}`},
		{text: "not json at all"},
	}}

	o, _, _ := newTestOrchestrator(t, client)
	_, err := o.AnalyzeService(context.Background(), "auth-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())
}
