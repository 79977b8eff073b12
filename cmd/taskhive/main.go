// TaskHive orchestrator server — accepts natural-language requests over
// HTTP, decomposes them into task DAGs, and executes them across a pool of
// BDI agents backed by an LLM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskhive-ai/taskhive/pkg/api"
	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/environment"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/masking"
	"github.com/taskhive-ai/taskhive/pkg/mcp"
	"github.com/taskhive-ai/taskhive/pkg/notify"
	"github.com/taskhive-ai/taskhive/pkg/runtime"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
	"github.com/taskhive-ai/taskhive/pkg/telemetry"
	"github.com/taskhive-ai/taskhive/pkg/tools"
	"github.com/taskhive-ai/taskhive/pkg/version"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// configureLogging installs a text handler at the level named by LOG_LEVEL
// (debug, info, warn, error; default info).
func configureLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}
	configureLogging()

	slog.Info("Starting TaskHive",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the run-history store
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()
	slog.Info("Store opened", "backend", cfg.Store.Backend)

	// 3. Event bus, telemetry, WebSocket fan-out
	bus := events.NewBus()
	defer bus.Close()

	metrics := telemetry.New()
	metrics.RegisterDroppedEvents(bus.Dropped)
	go metrics.WatchBus(bus.Subscribe(256))

	connManager := events.NewConnectionManager(bus, 10*time.Second)
	connManager.Start()
	defer connManager.Stop()

	// 4. Environment: resource ledger, constraints, dynamics
	env := environment.New(cfg.Environment, bus)
	env.Start()
	defer env.Stop()

	// 5. Workspace manager and checkpoint sweeper
	ws, err := workspace.NewManager(cfg.Workspace)
	if err != nil {
		slog.Error("Failed to initialize workspace", "root", cfg.Workspace.Root, "error", err)
		os.Exit(1)
	}
	sweeper := workspace.NewSweeper(cfg.Workspace, ws)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 6. LLM client. The swarm degrades to direct scheduling without one.
	var llmClient *llm.Client
	if cfg.LLM.BaseURL != "" {
		llmClient, err = llm.NewClient(cfg.LLM)
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			os.Exit(1)
		}
		llmClient.SetCallObserver(metrics.ObserveLLMCall)
		slog.Info("LLM client initialized", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	} else {
		slog.Warn("No LLM base_url configured; decomposition and cognitive reasoning are disabled")
	}

	// 7. Tool registry: canonical tools plus bridged MCP servers
	registry := tools.NewRegistry()
	mustRegister := func(t tools.Tool) {
		if err := registry.Register(t); err != nil {
			slog.Error("Failed to register tool", "tool", t.Name(), "error", err)
			os.Exit(1)
		}
	}
	mustRegister(tools.NewFilesystemTool(ws))
	mustRegister(tools.NewGitTool(ws))
	mustRegister(tools.NewHTTPTool(nil))
	mustRegister(tools.NewWebSearchTool("", nil))
	if llmClient != nil {
		mustRegister(tools.NewCodeTool(llmClient))
	}
	if pg, ok := st.(*store.Postgres); ok {
		mustRegister(tools.NewDatabaseTool(pg.DB()))
	}

	maskingService := masking.NewMaskingService(cfg.MCPServerRegistry, masking.RequestMaskingConfig{})
	if ids := cfg.MCPServerRegistry.ServerIDs(); len(ids) > 0 {
		factory := mcp.NewClientFactory(cfg.MCPServerRegistry)
		bridge, err := factory.CreateBridge(ctx, ids, maskingService)
		if err != nil {
			slog.Error("MCP startup validation failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := bridge.Close(); err != nil {
				slog.Error("Error closing MCP bridge", "error", err)
			}
		}()
		n, err := bridge.RegisterAll(ctx, registry)
		if err != nil {
			slog.Error("Failed to mount MCP tools", "error", err)
			os.Exit(1)
		}
		slog.Info("MCP tools mounted", "servers", len(ids), "tools", n)

		monitor := mcp.NewHealthMonitor(factory, cfg.MCPServerRegistry, metrics)
		monitor.Start(ctx)
		defer monitor.Stop()
	}
	slog.Info("Tool registry ready", "tools", len(registry.List()))

	// 8. Agent runtime and Slack notifier
	rt := runtime.New(bus, env)
	notifier := notify.NewService(cfg.Slack)

	// 9. Swarm coordinator
	coordinator := swarm.New(swarm.Deps{
		Config:    cfg,
		Bus:       bus,
		Runtime:   rt,
		Env:       env,
		Workspace: ws,
		Tools:     registry,
		LLM:       llmClient,
		Store:     st,
		Notifier:  notifier,
		Metrics:   metrics,
	})
	if err := coordinator.Start(ctx); err != nil {
		slog.Error("Failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// 10. HTTP server (non-blocking)
	httpServer := api.NewServer(api.Deps{
		Config:      cfg.Server,
		Swarm:       coordinator,
		Store:       st,
		ConnManager: connManager,
		Env:         env,
		Metrics:     metrics.Handler(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("TaskHive started",
		"agents", cfg.Swarm.InitialAgents,
		"store", cfg.Store.Backend)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: intake closes first so the drain can finish,
	// then the HTTP surface goes down.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Swarm.GracefulShutdownTimeout+10*time.Second)
	defer cancel()
	coordinator.Stop(shutdownCtx)

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
