package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	lspAdapter "github.com/Strob0t/RefactorForge/internal/adapter/lsp"
	"github.com/Strob0t/RefactorForge/internal/adapter/mcp"
	rfotel "github.com/Strob0t/RefactorForge/internal/adapter/otel"
	"github.com/Strob0t/RefactorForge/internal/adapter/ristretto"
	"github.com/Strob0t/RefactorForge/internal/config"
	"github.com/Strob0t/RefactorForge/internal/logger"
	"github.com/Strob0t/RefactorForge/internal/plugin"
	"github.com/Strob0t/RefactorForge/internal/plugin/rust"
	"github.com/Strob0t/RefactorForge/internal/plugin/typescript"
	"github.com/Strob0t/RefactorForge/internal/service"
	"github.com/Strob0t/RefactorForge/internal/workspace"
)

func main() {
	// Bootstrap logger until config is loaded. MCP owns stdout, so logs go
	// to stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}

	slog.Info("config loaded",
		"workspace", root,
		"servers", len(cfg.LSP.Servers),
		"log_level", cfg.Logging.Level,
	)

	// Config hot reload.
	holder := config.NewHolder(cfg, yamlPath)
	stopWatch, err := config.Watch(holder)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	// Tracing and metrics.
	otelShutdown, err := rfotel.InitTracer(rfotel.OTELConfig{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	// --- Infrastructure ---

	var fileCache *ristretto.Cache
	if cfg.Cache.Enabled {
		fileCache, err = ristretto.New(cfg.Cache.MaxCostBytes)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer fileCache.Close()
	}

	snaps := workspace.NewSnapshots(fileCache)
	scanner, err := workspace.NewScanner(root)
	if err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	wsWatcher, err := workspace.NewWatcher(root, snaps)
	if err != nil {
		slog.Warn("workspace watcher unavailable", "error", err)
	} else {
		defer wsWatcher.Close()
	}

	// --- Language layer ---

	registry := plugin.NewRegistry(typescript.New(), rust.New())
	orch := lspAdapter.NewOrchestrator(cfg.LSP.Servers, root)
	orch.StartSweeper(cfg.LSP.SweepInterval)

	// --- Services ---

	refs := service.NewReferenceUpdater(registry, scanner, snaps)
	planner := service.NewPlanner(orch, registry, scanner, snaps, refs, cfg.LSP.DefaultTimeout())
	applier := service.NewApplier(snaps)
	plans := service.NewPlanStore(64)

	// --- MCP surface ---

	srv := mcp.NewServer(
		mcp.ServerConfig{Name: cfg.Server.Name, Version: cfg.Server.Version},
		mcp.ServerDeps{Planner: planner, Applier: applier, Pool: orch, Plans: plans},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional health endpoint next to the stdio surface.
	var healthSrv *http.Server
	if cfg.Server.HealthAddr != "" {
		r := chi.NewRouter()
		r.Use(chimw.RequestID)
		r.Use(chimw.RealIP)
		r.Use(chimw.Recoverer)
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(rfotel.HTTPMiddleware(cfg.Server.Name))
		r.Get("/health", healthHandler(cfg, orch))

		healthSrv = &http.Server{
			Addr:              cfg.Server.HealthAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("health endpoint listening", "addr", cfg.Server.HealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("health endpoint failed", "error", err)
			}
		}()
	}

	// Serve MCP until the stream closes or a signal arrives.
	serveErr := srv.ServeStdio(ctx)

	// --- Ordered graceful shutdown ---

	slog.Info("shutdown phase 1: stopping health endpoint")
	if healthSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("health shutdown error", "error", err)
		}
		cancel()
	}

	slog.Info("shutdown phase 2: draining language servers")
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	orch.Shutdown(drainCtx)
	cancel()

	slog.Info("shutdown phase 3: flushing telemetry")
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := otelShutdown(flushCtx); err != nil {
		slog.Error("otel shutdown error", "error", err)
	}
	cancel()

	slog.Info("shutdown complete")
	if serveErr != nil && ctx.Err() == nil {
		return serveErr
	}
	return nil
}

// healthHandler mirrors the health_check tool over HTTP.
func healthHandler(cfg *config.Config, orch *lspAdapter.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		clients := orch.Clients()
		payload := map[string]any{
			"status":    "ok",
			"name":      cfg.Server.Name,
			"version":   cfg.Server.Version,
			"pool_size": len(clients),
			"clients":   clients,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(payload)
	}
}
