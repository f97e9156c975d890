// Steward runs the trust-tiered proposal orchestrator: HTTP API, WebSocket
// hub, audit stream, session reaper, and the optional operator MCP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	sthttp "github.com/steward-labs/steward/internal/adapter/http"
	"github.com/steward-labs/steward/internal/adapter/llm"
	"github.com/steward-labs/steward/internal/adapter/mcp"
	stnats "github.com/steward-labs/steward/internal/adapter/nats"
	stotel "github.com/steward-labs/steward/internal/adapter/otel"
	"github.com/steward-labs/steward/internal/adapter/postgres"
	"github.com/steward-labs/steward/internal/adapter/ristretto"
	"github.com/steward-labs/steward/internal/adapter/ws"
	"github.com/steward-labs/steward/internal/budget"
	"github.com/steward-labs/steward/internal/config"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/logger"
	"github.com/steward-labs/steward/internal/middleware"
	"github.com/steward-labs/steward/internal/resilience"
	"github.com/steward-labs/steward/internal/service"
	"github.com/steward-labs/steward/internal/softconfirm"
	"github.com/steward-labs/steward/internal/telemetry"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	stream, err := stnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = stream.Close() }()

	sessionCache, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer sessionCache.Close()

	var metrics *telemetry.Metrics
	if cfg.Otel.Enabled {
		shutdownOtel, err := stotel.Init(ctx, cfg.Otel, cfg.Logging.Service)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(shutdownCtx)
		}()

		metrics, err = telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin, nil)
	store := postgres.NewStore(pool)

	windows := softconfirm.Windows{
		Chat:  cfg.SoftConfirm.ChatWindow,
		Setup: cfg.SoftConfirm.SetupWindow,
		Admin: cfg.SoftConfirm.AdminWindow,
	}
	proposalSvc := service.NewProposalService(store, stream, hub, windows)
	sessionSvc := service.NewSessionService(store, sessionCache, cfg.Cache.SessionTTL, stream, hub, cfg.Session.TTL)

	breakers := resilience.NewBreakers(cfg.Breaker.Threshold, cfg.Breaker.Cooldown, cfg.Breaker.MaxIdle)

	reasonerClient := llm.NewClient(cfg.Reasoner)
	reasonerClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown))

	registry := tool.NewRegistry()
	if err := registerTools(registry, cfg.Tools); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	slog.Info("tools registered", "count", len(cfg.Tools))

	orch := service.NewOrchestrator(service.OrchestratorConfig{
		Registry:  registry,
		Reasoner:  reasonerClient,
		Sessions:  sessionSvc,
		Proposals: proposalSvc,
		Breakers:  breakers,
		Caps: budget.Caps{
			T1: cfg.Budget.T1,
			T2: cfg.Budget.T2,
			T3: cfg.Budget.T3,
		},
		ExecTimeout: cfg.Executor.Timeout,
		Retry: resilience.RetryPolicy{
			MaxTries:        uint(cfg.Executor.RetryMaxTries),
			InitialInterval: cfg.Executor.RetryInitial,
			MaxInterval:     cfg.Executor.RetryMax,
		},
		Metrics: metrics,
	})

	// --- HTTP ---

	handlers := &sthttp.Handlers{
		Orchestrator: orch,
		Proposals:    proposalSvc,
		Sessions:     sessionSvc,
		Registry:     registry,
		HealthCheck:  pool.Ping,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(limiter.Handler)
	r.Use(middleware.TenantID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(stotel.HTTPMiddleware(cfg.Logging.Service))
	}

	sthttp.MountRoutes(r, handlers, hub.HandleWS)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---

	var mcpSrv *mcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcp.NewServer(mcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "steward",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, mcp.ServerDeps{
			Proposals: proposalSvc,
			Actor:     orch,
			Sessions:  sessionSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	// --- Run until signalled ---

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sessionSvc.RunReaper(gctx, cfg.Session.ReaperPeriod, proposalSvc)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Breaker.MaxIdle)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				breakers.EvictIdle()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if mcpSrv != nil {
			if err := mcpSrv.Stop(shutdownCtx); err != nil {
				slog.Error("mcp shutdown", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
