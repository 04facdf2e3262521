// Package agent implements the Forge reliability agent: an LLM-driven
// orchestrator that analyzes services through a tool-calling loop, falls
// back to a deterministic synthetic engine when no model is reachable, and
// deepens every analysis with a background model pass.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/forge/pkg/activity"
	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/llm"
	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/models"
)

const (
	// maxIterations bounds the tool-calling loop of one analysis.
	maxIterations = 8

	defaultTemperature = 0.1
	defaultMaxTokens   = 4096
	backgroundTokens   = 16384

	// DefaultBackgroundTimeout caps the deepening pass.
	DefaultBackgroundTimeout = 60 * time.Second
)

// Options configures the orchestrator.
type Options struct {
	// Client is the model transport. Nil runs fully in demo mode.
	Client llm.Client
	// BackgroundTimeout caps the deepening pass; zero means the default.
	BackgroundTimeout time.Duration
	Logger            *slog.Logger
}

// Orchestrator runs service analyses. One instance serves all requests.
type Orchestrator struct {
	client            llm.Client
	exec              *Executor
	store             *memory.Store
	activity          *activity.Log
	logger            *slog.Logger
	backgroundTimeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	bg sync.WaitGroup
}

// New creates an orchestrator around the wired tool executor.
func New(exec *Executor, store *memory.Store, act *activity.Log, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.BackgroundTimeout
	if timeout <= 0 {
		timeout = DefaultBackgroundTimeout
	}
	return &Orchestrator{
		client:            opts.Client,
		exec:              exec,
		store:             store,
		activity:          act,
		logger:            logger,
		backgroundTimeout: timeout,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Close waits for in-flight background passes to finish.
func (o *Orchestrator) Close() error {
	o.bg.Wait()
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}

// AnalyzeService runs a full analysis and returns the structured report.
// The model path is attempted first; any failure falls back to the
// deterministic synthetic engine so the endpoint never errors on a model
// outage.
func (o *Orchestrator) AnalyzeService(ctx context.Context, service string) (*models.Report, error) {
	runID := newRunID()

	report, err := o.runModelAnalysis(ctx, service, runID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.E(errs.KindLLM, "agent.AnalyzeService", ctx.Err())
		}
		o.logger.Warn("model orchestrator failed, using demo mode", "service", service, "error", err)
		report = demoReport(service, runID, time.Now().UTC())
	}

	actionTypes := make([]string, 0, len(report.ActionsTaken))
	for _, a := range report.ActionsTaken {
		actionTypes = append(actionTypes, a.ActionType)
	}
	if _, err := o.store.RecordAnalysis(models.AnalysisSession{
		Trigger:          "manual",
		ServicesAnalyzed: []string{service},
		FindingsSummary:  report.ChatSummary,
		ActionsTaken:     actionTypes,
	}); err != nil {
		o.logger.Warn("analysis record failed", "service", service, "error", err)
	}

	if report.HealthScore > 0 {
		if err := o.store.UpdateBaseline(service, models.Baseline{
			"health_score":   report.HealthScore,
			"avg_latency_ms": report.Validation.LatencyP99Ms,
		}); err != nil {
			o.logger.Warn("baseline update failed", "service", service, "error", err)
		}
	}

	o.generateServiceInsights(service)

	o.activity.Add(activity.EventAnalysis, activity.SourcePrimary,
		"Analyzed "+service, report.ChatSummary,
		map[string]any{"run_id": runID, "health_score": report.HealthScore, "status": report.Status})

	o.fireBackground(service, report)
	return report, nil
}

// GenerateInsights runs the optimization pass for one service, or for every
// known service when service is empty.
func (o *Orchestrator) GenerateInsights(ctx context.Context, service string) (*models.InsightsSummary, error) {
	if o.client != nil {
		summary, err := o.runModelInsights(ctx, service)
		if err == nil {
			return summary, nil
		}
		if ctx.Err() != nil {
			return nil, errs.E(errs.KindLLM, "agent.GenerateInsights", ctx.Err())
		}
		o.logger.Warn("model insights failed, using demo mode", "error", err)
	}
	return o.demoInsightsSummary(ctx, service)
}

// Chat streams a conversational answer. Text chunks are forwarded as they
// arrive; tool calls are executed mid-stream. The channel is closed when
// the answer is complete.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string, sysContext map[string]any) (<-chan string, error) {
	out := make(chan string, 16)

	if o.client == nil {
		go func() {
			defer close(out)
			out <- o.demoChatReply(userMessage)
		}()
		return out, nil
	}

	var contextBlock string
	if len(sysContext) > 0 {
		b, _ := json.MarshalIndent(sysContext, "", "  ")
		contextBlock = fmt.Sprintf("Current system context:\n%s\n\n", b)
	}
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: contextBlock + "User question: " + userMessage},
	}

	go func() {
		defer close(out)
		for iter := 0; iter < maxIterations; iter++ {
			ch, err := o.client.Generate(ctx, &llm.GenerateInput{
				Messages:    messages,
				Tools:       o.exec.Definitions(),
				Temperature: defaultTemperature,
				MaxTokens:   defaultMaxTokens,
			})
			if err != nil {
				out <- "Sorry, the reasoning model is unreachable right now. " + o.demoChatReply(userMessage)
				return
			}

			var text strings.Builder
			var calls []llm.ToolCall
			failed := false
			for chunk := range ch {
				switch c := chunk.(type) {
				case *llm.TextChunk:
					text.WriteString(c.Content)
					select {
					case out <- c.Content:
					case <-ctx.Done():
						return
					}
				case *llm.ToolCallChunk:
					calls = append(calls, llm.ToolCall{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
				case *llm.ErrorChunk:
					o.logger.Warn("chat stream error", "error", c.Message)
					failed = true
				}
			}
			if failed || len(calls) == 0 {
				return
			}

			messages = append(messages, llm.Message{Role: "assistant", Content: text.String(), ToolCalls: calls})
			for _, call := range calls {
				messages = append(messages, llm.Message{
					Role:       "tool",
					Content:    o.exec.Execute(ctx, call),
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})
			}
		}
	}()
	return out, nil
}

// runModelAnalysis drives the tool-calling loop until the model returns a
// parseable report.
func (o *Orchestrator) runModelAnalysis(ctx context.Context, service, runID string) (*models.Report, error) {
	text, err := o.runLoop(ctx, analysisPrompt(service, runID))
	if err != nil {
		return nil, err
	}
	payload, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var report models.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("agent: unparseable report: %w", err)
	}
	if report.RunID == "" {
		report.RunID = runID
	}
	if report.Service == "" {
		report.Service = service
	}
	if report.Timestamp == "" {
		report.Timestamp = models.Now()
	}
	return &report, nil
}

func (o *Orchestrator) runModelInsights(ctx context.Context, service string) (*models.InsightsSummary, error) {
	services := o.servicesToAnalyze(ctx, service)
	text, err := o.runLoop(ctx, insightsPrompt(services))
	if err != nil {
		return nil, err
	}
	payload, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var summary models.InsightsSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("agent: unparseable insights summary: %w", err)
	}

	if _, err := o.store.RecordAnalysis(models.AnalysisSession{
		Trigger:          models.TaskGenerateInsights,
		ServicesAnalyzed: services,
		FindingsSummary:  fmt.Sprintf("Generated insights for %d services", len(services)),
		ActionsTaken:     []string{"generate_insights"},
	}); err != nil {
		o.logger.Warn("analysis record failed", "error", err)
	}

	for _, svc := range services {
		o.fireBackground(svc, summary)
	}
	return &summary, nil
}

// runLoop is the shared iterating controller: send, execute tool calls,
// append results, repeat until the model answers in text.
func (o *Orchestrator) runLoop(ctx context.Context, userPrompt string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("agent: no model configured")
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	for iter := 0; iter < maxIterations; iter++ {
		ch, err := o.client.Generate(ctx, &llm.GenerateInput{
			Messages:    messages,
			Tools:       o.exec.Definitions(),
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		})
		if err != nil {
			return "", err
		}
		text, calls, err := llm.CollectText(ctx, ch)
		if err != nil {
			return "", err
		}
		if len(calls) == 0 {
			return text, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: text, ToolCalls: calls})
		for _, call := range calls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    o.exec.Execute(ctx, call),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}
	return "", fmt.Errorf("agent: no final answer after %d iterations", maxIterations)
}

// fireBackground launches the deepening pass without blocking the caller.
// Failures and timeouts are logged, never propagated.
func (o *Orchestrator) fireBackground(service string, report any) {
	if o.client == nil {
		return
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()

		ctx, cancel := llm.WithTimeout(context.Background(), o.backgroundTimeout)
		defer cancel()

		ch, err := o.client.Generate(ctx, &llm.GenerateInput{
			Messages: []llm.Message{
				{Role: "system", Content: backgroundSystemPrompt},
				{Role: "user", Content: deepeningPrompt(service, payload)},
			},
			Temperature: defaultTemperature,
			MaxTokens:   backgroundTokens,
		})
		if err != nil {
			o.logger.Warn("background pass failed", "service", service, "error", err)
			return
		}
		text, _, err := llm.CollectText(ctx, ch)
		if err != nil {
			o.logger.Warn("background pass failed", "service", service, "error", err)
			return
		}
		o.storeDeepening(service, text)
	}()
}

// storeDeepening parses the background model output and persists its
// findings with the background marker prefix.
func (o *Orchestrator) storeDeepening(service, text string) {
	payload, err := extractJSON(text)
	if err != nil {
		o.logger.Warn("background pass returned unparseable response", "service", service)
		return
	}

	var result struct {
		DeepInsights []struct {
			Category       string `json:"category"`
			Severity       string `json:"severity"`
			Title          string `json:"title"`
			Insight        string `json:"insight"`
			Recommendation string `json:"recommendation"`
		} `json:"deep_insights"`
		Patterns []struct {
			Type           string  `json:"type"`
			Description    string  `json:"description"`
			Confidence     float64 `json:"confidence"`
			Recommendation string  `json:"recommendation"`
		} `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		o.logger.Warn("background pass returned unparseable response", "service", service)
		return
	}

	stored, patterns := 0, 0
	for _, ins := range result.DeepInsights {
		title := ins.Title
		if title == "" {
			title = "Background insight"
		}
		if _, err := o.store.AddInsight(service, models.Insight{
			Category:       defaultIfEmpty(ins.Category, models.CategoryOptimization),
			Severity:       defaultIfEmpty(ins.Severity, models.SeverityLow),
			Title:          "[MiniMax] " + title,
			Insight:        ins.Insight,
			Recommendation: ins.Recommendation,
		}); err == nil {
			stored++
		}
	}
	for _, pat := range result.Patterns {
		conf := pat.Confidence
		if conf <= 0 {
			conf = 0.5
		}
		if _, err := o.store.AddPattern(service, models.Pattern{
			Type:           defaultIfEmpty(pat.Type, "detected"),
			Description:    "[MiniMax] " + pat.Description,
			Confidence:     conf,
			Recommendation: pat.Recommendation,
		}); err == nil {
			patterns++
		}
	}

	o.activity.Add(activity.EventMinimax, activity.SourceBackground,
		fmt.Sprintf("Background pass stored %d insights, %d patterns for %s", stored, patterns, service),
		"", map[string]any{"service": service})
	o.logger.Info("background pass completed", "service", service, "insights", stored, "patterns", patterns)
}

// demoChatReply answers from memory when no model is configured.
func (o *Orchestrator) demoChatReply(_ string) string {
	recs := o.store.GetRecommendations()
	if len(recs) == 0 {
		return "All monitored services look stable. No open high-severity findings right now. " +
			"Run an analysis on a specific service to gather fresh insights."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("There are %d open high-severity findings:\n", len(recs)))
	for i, r := range recs {
		if i == 3 {
			break
		}
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", r.Title, r.Service, r.Recommendation))
	}
	return sb.String()
}

// extractJSON returns the substring between the first '{' and the last '}'.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("agent: no JSON object in model output")
	}
	return text[start : end+1], nil
}

func defaultIfEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func newRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
