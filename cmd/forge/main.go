// Forge server: autonomous microservice observability and remediation
// platform. Provides the HTTP API, the agent orchestrator, and the cluster
// coordinator.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/codeready-toolchain/forge/pkg/activity"
	"github.com/codeready-toolchain/forge/pkg/agent"
	"github.com/codeready-toolchain/forge/pkg/api"
	"github.com/codeready-toolchain/forge/pkg/cluster"
	"github.com/codeready-toolchain/forge/pkg/config"
	"github.com/codeready-toolchain/forge/pkg/graph"
	"github.com/codeready-toolchain/forge/pkg/llm"
	"github.com/codeready-toolchain/forge/pkg/memory"
	"github.com/codeready-toolchain/forge/pkg/nettest"
	"github.com/codeready-toolchain/forge/pkg/remediation"
	"github.com/codeready-toolchain/forge/pkg/telemetry"
	"github.com/codeready-toolchain/forge/pkg/validation"
	"github.com/codeready-toolchain/forge/pkg/version"
)

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, continuing with existing environment", "error", err)
	}

	cfg, err := config.Initialize()
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("Starting Forge",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"demo_mode", cfg.DemoMode)

	// Knowledge store. A broken storage path is fatal: every component
	// writes through it.
	store, err := memory.NewStore(cfg.MemoryPath)
	if err != nil {
		logger.Error("Failed to open memory store", "path", cfg.MemoryPath, "error", err)
		os.Exit(1)
	}
	logger.Info("Memory store loaded",
		"path", cfg.MemoryPath,
		"services", len(store.ServiceNames()))

	// Topology graph: external service or the seeded in-process demo graph.
	var topo graph.Adapter
	if cfg.HasGraph() {
		topo = graph.NewHTTPClient(cfg.GraphURL)
		logger.Info("Graph adapter connected", "url", cfg.GraphURL)
	} else {
		mg := graph.NewMemoryGraph()
		mg.Seed()
		topo = mg
		logger.Info("Using in-process demo graph")
	}

	var metrics telemetry.Adapter
	if cfg.HasDatadog() {
		metrics = telemetry.NewDatadogClient(cfg.DatadogSite, cfg.DatadogAPIKey, cfg.DatadogAppKey)
		logger.Info("Datadog metrics adapter configured", "site", cfg.DatadogSite)
	}

	actionLog := actions.NewLog()
	activityLog := activity.NewLog()

	var rem remediation.Adapter
	if cfg.HasRemediation() {
		rem = remediation.NewHTTPProvider(cfg.RemediationURL, cfg.RemediationToken, actionLog)
		logger.Info("Remediation provider configured", "url", cfg.RemediationURL)
	} else {
		rem = remediation.NewDemoProvider(actionLog)
		logger.Info("Using demo remediation provider")
	}

	validator := validation.NewValidator(cfg.SelfBaseURL)

	var modelClient llm.Client
	if cfg.HasLLM() {
		modelClient = llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		logger.Info("LLM client configured", "model", cfg.LLMModel)
	} else {
		logger.Info("No LLM configured, agent runs in demo mode")
	}

	exec := agent.NewExecutor(topo, metrics, store, rem, validator, activityLog, logger)
	orch := agent.New(exec, store, activityLog, agent.Options{
		Client:            modelClient,
		BackgroundTimeout: cfg.LLMBackgroundTimeout,
		Logger:            logger,
	})
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Error("Error closing orchestrator", "error", err)
		}
	}()

	coord := cluster.New(validator, logger)
	if nodes, err := topo.ListServices(context.Background()); err == nil && len(nodes) > 0 {
		names := make([]string, 0, len(nodes))
		for _, n := range nodes {
			names = append(names, n.Name)
		}
		coord.SetServices(names)
		logger.Info("Cluster coordinator seeded", "services", len(names))
	}

	tester := nettest.NewEngine(cfg.SelfBaseURL, store)

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Options{
		Graph:       topo,
		Metrics:     metrics,
		Store:       store,
		Agent:       orch,
		Coordinator: coord,
		Tester:      tester,
		Remediation: rem,
		Validator:   validator,
		Activity:    activityLog,
		Actions:     actionLog,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
