package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/codeready-toolchain/forge/pkg/activity"
	"github.com/codeready-toolchain/forge/pkg/graph"
	"github.com/codeready-toolchain/forge/pkg/llm"
	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/remediation"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

// scriptedTurn is one canned model response.
type scriptedTurn struct {
	text  string
	calls []llm.ToolCall
}

// scriptedClient plays back canned responses; exhausted turns error.
type scriptedClient struct {
	turns []scriptedTurn
	turn  int
}

func (c *scriptedClient) Generate(_ context.Context, _ *llm.GenerateInput) (<-chan llm.Chunk, error) {
	if c.turn >= len(c.turns) {
		return nil, fmt.Errorf("scripted client: no more turns")
	}
	t := c.turns[c.turn]
	c.turn++

	ch := make(chan llm.Chunk, len(t.calls)+1)
	if t.text != "" {
		ch <- &llm.TextChunk{Content: t.text}
	}
	for _, call := range t.calls {
		ch <- &llm.ToolCallChunk{CallID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}
	close(ch)
	return ch, nil
}

func (c *scriptedClient) Close() error { return nil }

// failingClient always errors.
type failingClient struct{}

func (failingClient) Generate(context.Context, *llm.GenerateInput) (<-chan llm.Chunk, error) {
	return nil, fmt.Errorf("connection refused")
}

func (failingClient) Close() error { return nil }

func newTestOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *memory.Store, *activity.Log) {
	t.Helper()

	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	g := graph.NewMemoryGraph()
	g.Seed()
	act := activity.NewLog()
	rem := remediation.NewDemoProvider(actions.NewLog())
	val := validation.NewValidator("http://127.0.0.1:1")
	exec := NewExecutor(g, nil, store, rem, val, act, slog.Default())

	return New(exec, store, act, Options{Client: client}), store, act
}

func TestAnalyzeService_ModelPath(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{
		{calls: []llm.ToolCall{{
			ID: "call_1", Name: "get_service_health_from_graph",
			Arguments: `{"service_name": "payment-service"}`,
		}}},
		{text: `Analysis complete. {"run_id": "model-run", "service": "payment-service",
			"health_score": 42, "status": "critical",
			"root_cause": "gateway timeout cascade", "root_cause_service": "payment-gateway",
			"chat_summary": "payment-service is critical due to payment-gateway."}`},
	}}

	o, store, act := newTestOrchestrator(t, client)
	report, err := o.AnalyzeService(context.Background(), "payment-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	assert.Equal(t, "model-run", report.RunID)
	assert.Equal(t, 42.0, report.HealthScore)
	assert.Equal(t, "payment-gateway", report.RootCauseService)

	history := store.AnalysisHistory(10)
	require.NotEmpty(t, history)
	assert.Equal(t, []string{"payment-service"}, history[0].ServicesAnalyzed)

	mem := store.GetServiceMemory("payment-service")
	assert.NotEmpty(t, mem.BaselineMetrics)
	// Enrichment stores library insights alongside the model report.
	assert.NotEmpty(t, mem.Insights)

	entries := act.Recent(0, 50)
	types := map[string]bool{}
	for _, e := range entries {
		types[e.EventType] = true
	}
	assert.True(t, types[activity.EventToolCall])
	assert.True(t, types[activity.EventAnalysis])
}

func TestAnalyzeService_FallsBackWhenModelFails(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, failingClient{})

	report, err := o.AnalyzeService(context.Background(), "order-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	assert.Equal(t, "order-service", report.Service)
	assert.Contains(t, []string{"healthy", "degraded", "critical"}, report.Status)
	assert.NotEmpty(t, report.ChatSummary)
	assert.NotEmpty(t, store.AnalysisHistory(1))
}

func TestAnalyzeService_FallbackStableAcrossCalls(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, failingClient{})

	first, err := o.AnalyzeService(context.Background(), "auth-service")
	require.NoError(t, err)
	second, err := o.AnalyzeService(context.Background(), "auth-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	// Same service, same hour: identical synthetic findings.
	assert.Equal(t, first.HealthScore, second.HealthScore)
	assert.Equal(t, first.RootCause, second.RootCause)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestGenerateInsights_DemoMode(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, nil)

	summary, err := o.GenerateInsights(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	// Memory starts empty, so the graph supplies the service list.
	assert.NotEmpty(t, summary.ServicesAnalyzed)
	assert.Greater(t, summary.InsightsGeneratedCount, 0)
	assert.Greater(t, summary.PatternsDetectedCount, 0)
	assert.LessOrEqual(t, len(summary.TopRecommendations), 5)

	snap := store.Snapshot()
	assert.NotEmpty(t, snap.GlobalPatterns)
	assert.NotEmpty(t, snap.AnalysisHistory)
}

func TestGenerateInsights_SingleService(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, nil)

	summary, err := o.GenerateInsights(context.Background(), "payment-service")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	assert.Equal(t, []string{"payment-service"}, summary.ServicesAnalyzed)
	mem := store.GetServiceMemory("payment-service")
	assert.GreaterOrEqual(t, len(mem.Insights), 2)
	assert.LessOrEqual(t, len(mem.Insights), 4)
	assert.NotEmpty(t, mem.Patterns)
}

func TestChat_DemoModeAnswersFromMemory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, nil)

	ch, err := o.Chat(context.Background(), "how are my services?", nil)
	require.NoError(t, err)

	var full string
	for chunk := range ch {
		full += chunk
	}
	assert.NotEmpty(t, full)
	require.NoError(t, o.Close())
}

func TestChat_StreamsModelText(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{
		{text: "All services are stable."},
	}}
	o, _, _ := newTestOrchestrator(t, client)

	ch, err := o.Chat(context.Background(), "status?", map[string]any{"view": "dashboard"})
	require.NoError(t, err)

	var full string
	for chunk := range ch {
		full += chunk
	}
	assert.Equal(t, "All services are stable.", full)
	require.NoError(t, o.Close())
}

func TestExtractJSON(t *testing.T) {
	out, err := extractJSON(`prefix {"a": {"b": 1}} suffix`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b":1}}`, out)

	_, err = extractJSON("no json here")
	assert.Error(t, err)
}
