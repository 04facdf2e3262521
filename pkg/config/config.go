// Package config loads Forge's runtime configuration from the environment.
// The .env file, if present, is loaded by main before Initialize runs.
//
// Only malformed values are fatal. Missing provider credentials switch the
// corresponding adapter into demo mode instead of failing startup.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/codeready-toolchain/forge/pkg/errs"
)

// Config is the full runtime configuration.
type Config struct {
	HTTPPort    string
	FrontendURL string

	// SelfBaseURL is the address validation probes target. Defaults to the
	// local HTTP listener.
	SelfBaseURL string

	MemoryPath string

	// DemoMode forces every adapter onto its in-process implementation,
	// regardless of which credentials are present.
	DemoMode bool

	LogLevel string
	LogFile  string

	GraphURL string

	DatadogSite   string
	DatadogAPIKey string
	DatadogAppKey string

	RemediationURL   string
	RemediationToken string

	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMBackgroundTimeout time.Duration
}

// HasDatadog reports whether a live metrics backend is configured.
func (c *Config) HasDatadog() bool {
	return !c.DemoMode && c.DatadogAPIKey != "" && c.DatadogAppKey != ""
}

// HasLLM reports whether a live model endpoint is configured.
func (c *Config) HasLLM() bool {
	return !c.DemoMode && c.LLMBaseURL != "" && c.LLMAPIKey != ""
}

// HasGraph reports whether an external graph service is configured.
func (c *Config) HasGraph() bool {
	return !c.DemoMode && c.GraphURL != ""
}

// HasRemediation reports whether a live remediation provider is configured.
func (c *Config) HasRemediation() bool {
	return !c.DemoMode && c.RemediationURL != ""
}

// Initialize reads the environment into a Config. Malformed values return a
// Config-kind error, which main treats as fatal.
func Initialize() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8000"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:5173"),
		MemoryPath:       getEnv("MEMORY_PATH", "./data/agent_memory.json"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		GraphURL:         os.Getenv("GRAPH_URL"),
		DatadogSite:      getEnv("DATADOG_SITE", "datadoghq.com"),
		DatadogAPIKey:    os.Getenv("DATADOG_API_KEY"),
		DatadogAppKey:    os.Getenv("DATADOG_APP_KEY"),
		RemediationURL:   os.Getenv("REMEDIATION_URL"),
		RemediationToken: os.Getenv("REMEDIATION_TOKEN"),
		LLMBaseURL:       os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnv("LLM_MODEL", "MiniMax-M2"),
	}

	cfg.SelfBaseURL = getEnv("SELF_BASE_URL", "http://localhost:"+cfg.HTTPPort)

	demo, err := parseBool("DEMO_MODE", false)
	if err != nil {
		return nil, err
	}
	cfg.DemoMode = demo

	timeout, err := parseDuration("LLM_BACKGROUND_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.LLMBackgroundTimeout = timeout

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, errs.Errorf(errs.KindConfig, "config.Initialize",
			"LOG_LEVEL must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Errorf(errs.KindConfig, "config.Initialize", "%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	// Accept plain seconds for compatibility with older deployments.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errs.Errorf(errs.KindConfig, "config.Initialize", "%s must be a duration, got %q", key, raw)
	}
	return d, nil
}
