// Package api exposes Forge over HTTP: agent invocation, topology graph,
// insights, cluster control, network tests, webhooks, and action history.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/codeready-toolchain/forge/pkg/activity"
	"github.com/codeready-toolchain/forge/pkg/cluster"
	"github.com/codeready-toolchain/forge/pkg/graph"
	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/codeready-toolchain/forge/pkg/nettest"
	"github.com/codeready-toolchain/forge/pkg/remediation"
	"github.com/codeready-toolchain/forge/pkg/telemetry"
	"github.com/codeready-toolchain/forge/pkg/validation"
)

// AgentService is the slice of the orchestrator the handlers need.
type AgentService interface {
	AnalyzeService(ctx context.Context, service string) (*models.Report, error)
	GenerateInsights(ctx context.Context, service string) (*models.InsightsSummary, error)
	Chat(ctx context.Context, message string, sysContext map[string]any) (<-chan string, error)
}

// Options carries every collaborator the server needs. All singletons are
// constructed in main and passed in explicitly.
type Options struct {
	Graph       graph.Adapter
	Metrics     telemetry.Adapter // nil when no observability backend is configured
	Store       *memory.Store
	Agent       AgentService
	Coordinator *cluster.Coordinator
	Tester      *nettest.Engine
	Remediation remediation.Adapter
	Validator   validation.Adapter
	Activity    *activity.Log
	Actions     *actions.Log
	FrontendURL string
	Logger      *slog.Logger
}

// Server wires the HTTP handlers to the Forge components.
type Server struct {
	graph       graph.Adapter
	metrics     telemetry.Adapter
	store       *memory.Store
	agent       AgentService
	coord       *cluster.Coordinator
	tester      *nettest.Engine
	rem         remediation.Adapter
	val         validation.Adapter
	activity    *activity.Log
	actions     *actions.Log
	frontendURL string
	logger      *slog.Logger
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		graph:       opts.Graph,
		metrics:     opts.Metrics,
		store:       opts.Store,
		agent:       opts.Agent,
		coord:       opts.Coordinator,
		tester:      opts.Tester,
		rem:         opts.Remediation,
		val:         opts.Validator,
		activity:    opts.Activity,
		actions:     opts.Actions,
		frontendURL: opts.FrontendURL,
		logger:      logger,
	}
}

// Router builds the gin engine with all routes and middleware registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.frontendURL), securityHeaders(), httpMetrics())

	r.GET("/health", s.health)
	r.GET("/", s.root)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ag := r.Group("/api/agent")
	{
		ag.POST("/analyze", s.analyzeService)
		ag.POST("/chat", s.chat)
		ag.GET("/activity", s.agentActivity)
		ag.GET("/health", s.allServiceHealth)
		ag.POST("/simulate/degrade", s.simulateDegrade)
		ag.POST("/simulate/recover", s.simulateRecover)
	}

	gr := r.Group("/api/graph")
	{
		gr.GET("/", s.fullGraph)
		gr.GET("/service/:name", s.serviceSubgraph)
		gr.GET("/deployments/recent", s.recentDeployments)
	}

	ins := r.Group("/api/insights")
	{
		ins.GET("/", s.listInsights)
		ins.GET("/patterns", s.listPatterns)
		ins.GET("/recommendations", s.listRecommendations)
		ins.POST("/generate", s.generateInsights)
		ins.PATCH("/:id", s.patchInsight)
		ins.GET("/:service", s.serviceInsights)
	}

	cl := r.Group("/api/cluster")
	{
		cl.GET("/status", s.clusterStatus)
		cl.POST("/tick", s.clusterTick)
		cl.POST("/enqueue", s.clusterEnqueue)
		cl.POST("/simulate-load", s.clusterSimulateLoad)
		cl.POST("/validate", s.clusterValidate)
		cl.GET("/validations", s.clusterValidations)
		cl.POST("/complete/:id", s.clusterComplete)
		cl.GET("/events", s.clusterEvents)
		cl.GET("/report", s.clusterReport)
		cl.POST("/scale", s.clusterScale)
	}

	nt := r.Group("/api/network-test")
	{
		nt.GET("/strategies", s.testStrategies)
		nt.POST("/run", s.runNetworkTests)
		nt.GET("/results", s.testResults)
	}

	hk := r.Group("/api/hooks")
	{
		hk.POST("/deploy", s.deployHook)
		hk.POST("/datadog-sync", s.metricsSyncHook)
		hk.POST("/scale", s.scaleHook)
	}

	ac := r.Group("/api/actions")
	{
		ac.GET("/", s.listActions)
		ac.DELETE("/", s.clearActions)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "forge-backend",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
