package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/forge/pkg/activity"
	"github.com/codeready-toolchain/forge/pkg/graph"
	"github.com/codeready-toolchain/forge/pkg/llm"
	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/codeready-toolchain/forge/pkg/remediation"
	"github.com/codeready-toolchain/forge/pkg/telemetry"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

// tool is one callable capability exposed to the model.
type tool struct {
	name        string
	description string
	schema      string
	run         func(ctx context.Context, args map[string]any) (any, error)
}

// Executor dispatches model tool calls into the platform adapters and
// journals every call on the activity feed.
type Executor struct {
	graph    graph.Adapter
	metrics  telemetry.Adapter
	store    *memory.Store
	rem      remediation.Adapter
	val      validation.Adapter
	activity *activity.Log
	logger   *slog.Logger

	tools []tool
	index map[string]int
}

// NewExecutor wires the tool registry. metrics may be nil when no
// telemetry provider is configured; its tools are then omitted.
func NewExecutor(g graph.Adapter, m telemetry.Adapter, store *memory.Store,
	rem remediation.Adapter, val validation.Adapter, act *activity.Log, logger *slog.Logger) *Executor {

	e := &Executor{
		graph:    g,
		metrics:  m,
		store:    store,
		rem:      rem,
		val:      val,
		activity: act,
		logger:   logger,
	}
	e.register()
	return e
}

// Definitions returns the tool surface advertised to the model.
func (e *Executor) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(e.tools))
	for i, t := range e.tools {
		defs[i] = llm.ToolDefinition{
			Name:             t.name,
			Description:      t.description,
			ParametersSchema: t.schema,
		}
	}
	return defs
}

// Execute runs one tool call. The result is always a string, JSON for
// structured outputs; tool failures are returned as error strings so the
// model can recover instead of aborting the loop.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) string {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Sprintf(`{"error": "invalid tool arguments: %s"}`, err)
		}
	}

	idx, ok := e.index[call.Name]
	if !ok {
		e.activity.Add(activity.EventError, activity.SourcePrimary,
			"Unknown tool requested: "+call.Name, "", nil)
		return fmt.Sprintf(`{"error": "unknown tool %q"}`, call.Name)
	}

	result, err := e.tools[idx].run(ctx, args)
	if err != nil {
		e.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		e.activity.Add(activity.EventError, activity.SourcePrimary,
			"Tool "+call.Name+" failed", err.Error(), map[string]any{"tool": call.Name})
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error": "unencodable tool result: %s"}`, err)
	}
	e.activity.Add(activity.EventToolCall, activity.SourcePrimary,
		"Called "+call.Name, truncate(string(out), 300),
		map[string]any{"tool": call.Name, "args": args})
	return string(out)
}

const objectSchema = `{"type":"object","properties":{}}`

func serviceSchema(extra string) string {
	props := `"service_name":{"type":"string"}`
	if extra != "" {
		props += "," + extra
	}
	return `{"type":"object","properties":{` + props + `},"required":["service_name"]}`
}

func (e *Executor) register() {
	e.tools = []tool{
		{
			name:        "recall_service_history",
			description: "Retrieve stored baselines, patterns, and insights for a service. Call this FIRST for every analysis.",
			schema:      serviceSchema(""),
			run: func(_ context.Context, args map[string]any) (any, error) {
				return e.store.GetServiceMemory(argString(args, "service_name", "")), nil
			},
		},
		{
			name:        "recall_similar_incidents",
			description: "List every known pattern across all services, for cross-service correlation.",
			schema:      objectSchema,
			run: func(_ context.Context, _ map[string]any) (any, error) {
				return e.store.GetAllPatterns(), nil
			},
		},
		{
			name:        "get_optimization_recommendations",
			description: "Compile open high and critical severity insights that carry a recommendation.",
			schema:      objectSchema,
			run: func(_ context.Context, _ map[string]any) (any, error) {
				return e.store.GetRecommendations(), nil
			},
		},
		{
			name:        "store_insight",
			description: "Persist a categorised finding. Category: performance, reliability, cost, or optimization. Severity: low, medium, high, or critical.",
			schema: serviceSchema(`"category":{"type":"string"},"severity":{"type":"string"},"title":{"type":"string"},` +
				`"insight":{"type":"string"},"evidence":{"type":"string"},"recommendation":{"type":"string"}`),
			run: func(_ context.Context, args map[string]any) (any, error) {
				svc := argString(args, "service_name", "")
				id, err := e.store.AddInsight(svc, models.Insight{
					Category:       argString(args, "category", models.CategoryOptimization),
					Severity:       argString(args, "severity", models.SeverityLow),
					Title:          argString(args, "title", "Untitled insight"),
					Insight:        argString(args, "insight", ""),
					Evidence:       argString(args, "evidence", ""),
					Recommendation: argString(args, "recommendation", ""),
				})
				if err != nil {
					return nil, err
				}
				e.activity.Add(activity.EventInsightStored, activity.SourcePrimary,
					"Stored insight for "+svc, argString(args, "title", ""), nil)
				return map[string]any{"insight_id": id, "stored": true}, nil
			},
		},
		{
			name:        "store_pattern",
			description: "Persist a recurring behaviour pattern with a confidence between 0 and 1.",
			schema: serviceSchema(`"type":{"type":"string"},"description":{"type":"string"},` +
				`"confidence":{"type":"number"},"recommendation":{"type":"string"}`),
			run: func(_ context.Context, args map[string]any) (any, error) {
				svc := argString(args, "service_name", "")
				id, err := e.store.AddPattern(svc, models.Pattern{
					Type:           argString(args, "type", "detected"),
					Description:    argString(args, "description", ""),
					Confidence:     argFloat(args, "confidence", 0.5),
					Recommendation: argString(args, "recommendation", ""),
				})
				if err != nil {
					return nil, err
				}
				e.activity.Add(activity.EventPatternStored, activity.SourcePrimary,
					"Stored pattern for "+svc, argString(args, "type", ""), nil)
				return map[string]any{"pattern_id": id, "stored": true}, nil
			},
		},
		{
			name:        "get_service_health_from_graph",
			description: "Current health score, latency, and error rate for a service from the dependency graph.",
			schema:      serviceSchema(""),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.graph.ServiceHealth(ctx, argString(args, "service_name", ""))
			},
		},
		{
			name:        "get_service_dependencies",
			description: "Upstream and downstream dependencies of a service.",
			schema:      serviceSchema(""),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.graph.Dependencies(ctx, argString(args, "service_name", ""))
			},
		},
		{
			name:        "get_blast_radius",
			description: "Which upstream services are affected if this service degrades.",
			schema:      serviceSchema(`"max_hops":{"type":"integer"}`),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.graph.BlastRadius(ctx, argString(args, "service_name", ""), argInt(args, "max_hops", 3))
			},
		},
		{
			name:        "find_recent_changes",
			description: "Deployments to a service and its direct dependencies within a time window.",
			schema:      serviceSchema(`"hours_back":{"type":"integer"}`),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.graph.RecentChanges(ctx, argString(args, "service_name", ""), argInt(args, "hours_back", 6))
			},
		},
		{
			name:        "find_slowest_dependencies",
			description: "Downstream calls of a service ranked by p99 latency, slowest first.",
			schema:      serviceSchema(""),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.graph.SlowestDependencies(ctx, argString(args, "service_name", ""))
			},
		},
		{
			name:        "scale_ecs_service",
			description: "Scale an ECS service to a desired task count. Follow with validate_scale_stability.",
			schema: serviceSchema(`"cluster_name":{"type":"string"},"desired_count":{"type":"integer"},` +
				`"reason":{"type":"string"}`),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.rem.ScaleService(ctx,
					argString(args, "cluster_name", "forge-demo"),
					argString(args, "service_name", ""),
					argInt(args, "desired_count", 2),
					argString(args, "reason", ""))
			},
		},
		{
			name:        "trigger_rollback",
			description: "Roll back the most recent deployment of an application.",
			schema: `{"type":"object","properties":{"application_name":{"type":"string"},` +
				`"deployment_group":{"type":"string"},"reason":{"type":"string"}},"required":["application_name"]}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.rem.RollbackDeployment(ctx,
					argString(args, "application_name", ""),
					argString(args, "deployment_group", "production"),
					argString(args, "reason", ""))
			},
		},
		{
			name:        "update_ssm_parameter",
			description: "Update a runtime configuration parameter. The least invasive remediation.",
			schema: `{"type":"object","properties":{"parameter_name":{"type":"string"},"value":{"type":"string"},` +
				`"description":{"type":"string"},"service_name":{"type":"string"}},"required":["parameter_name","value"]}`,
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.rem.UpdateParameter(ctx,
					argString(args, "parameter_name", ""),
					argString(args, "value", ""),
					argString(args, "description", ""),
					argString(args, "service_name", ""))
			},
		},
		{
			name:        "validate_service_recovery",
			description: "Run the recovery test suite after a remediation and compare p99 against baseline.",
			schema:      serviceSchema(`"baseline_p99_ms":{"type":"number"},"test_suite":{"type":"string"}`),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.val.ValidateRecovery(ctx,
					argString(args, "service_name", ""),
					argFloat(args, "baseline_p99_ms", 200),
					argString(args, "test_suite", "smoke"))
			},
		},
		{
			name:        "validate_scale_stability",
			description: "Two-phase network stability check around a scale action. Call immediately after scale_ecs_service.",
			schema: serviceSchema(`"scale_direction":{"type":"string"},"instance_count_before":{"type":"integer"},` +
				`"instance_count_after":{"type":"integer"},"stabilization_wait_seconds":{"type":"integer"}`),
			run: func(ctx context.Context, args map[string]any) (any, error) {
				return e.val.ValidateScaleStability(ctx,
					argString(args, "service_name", ""),
					argString(args, "scale_direction", "up"),
					argInt(args, "instance_count_before", 1),
					argInt(args, "instance_count_after", 2),
					argInt(args, "stabilization_wait_seconds", 30),
					argString(args, "test_suite", "smoke"))
			},
		},
	}

	if e.metrics != nil {
		e.tools = append(e.tools,
			tool{
				name:        "get_monitor_alerts",
				description: "Monitors currently alerting in the observability provider. Check this before diagnosing.",
				schema:      objectSchema,
				run: func(ctx context.Context, _ map[string]any) (any, error) {
					return e.metrics.MonitorsSnapshot(ctx)
				},
			},
			tool{
				name:        "get_recent_events",
				description: "Recent infrastructure events (OOM kills, deployments, pod health) grouped by category.",
				schema: `{"type":"object","properties":{"hours_back":{"type":"integer"},` +
					`"filter_tags":{"type":"string"},"max_events":{"type":"integer"}}}`,
				run: func(ctx context.Context, args map[string]any) (any, error) {
					return e.metrics.RecentEvents(ctx,
						argInt(args, "hours_back", 4),
						argString(args, "filter_tags", ""),
						argInt(args, "max_events", 40))
				},
			},
			tool{
				name:        "query_metric",
				description: "Run a raw time-series metric query over a minute window.",
				schema: `{"type":"object","properties":{"query":{"type":"string"},` +
					`"from_minutes_ago":{"type":"integer"},"to_minutes_ago":{"type":"integer"}},"required":["query"]}`,
				run: func(ctx context.Context, args map[string]any) (any, error) {
					return e.metrics.QueryMetric(ctx,
						argString(args, "query", ""),
						argInt(args, "from_minutes_ago", 60),
						argInt(args, "to_minutes_ago", 0))
				},
			},
			tool{
				name:        "get_container_metrics",
				description: "Aggregated container CPU and memory pressure for a namespace.",
				schema: `{"type":"object","properties":{"namespace":{"type":"string"},` +
					`"window_minutes":{"type":"integer"}}}`,
				run: func(ctx context.Context, args map[string]any) (any, error) {
					return e.metrics.ContainerMetrics(ctx,
						argString(args, "namespace", ""),
						argInt(args, "window_minutes", 30))
				},
			},
		)
	}

	e.index = make(map[string]int, len(e.tools))
	for i, t := range e.tools {
		e.index[t.name] = i
	}
}

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argFloat(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
