package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/rpcpool/internal/audit"
	"github.com/rickgao/rpcpool/internal/backoff"
	"github.com/rickgao/rpcpool/internal/config"
	"github.com/rickgao/rpcpool/internal/database"
	"github.com/rickgao/rpcpool/internal/event"
	"github.com/rickgao/rpcpool/internal/metrics"
	"github.com/rickgao/rpcpool/internal/pool"
	"github.com/rickgao/rpcpool/internal/prober"
	"github.com/rickgao/rpcpool/internal/version"
	"github.com/rickgao/rpcpool/internal/wsrpc"
)

func main() {
	configPath := flag.String("config", "configs/prober.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting prober",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"upstream", cfg.Upstream.Addr,
		"pool_size", cfg.Pool.Size,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics registry and sink
	registry := prometheus.NewRegistry()
	sinks := []event.Sink{metrics.NewSink(registry)}

	// Audit trail (optional)
	var db *pgxpool.Pool
	var auditWriter *audit.Writer
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit store",
			"host", cfg.Audit.Postgres.Host,
			"port", cfg.Audit.Postgres.Port,
			"database", cfg.Audit.Postgres.Name,
		)

		db, err = database.Connect(ctx, cfg.Audit.Postgres)
		if err != nil {
			logger.Error("failed to connect to audit store", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		logger.Info("audit store connected")

		auditWriter = audit.NewWriter(audit.Config{
			Instance:      cfg.Instance.ID,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval.Duration(),
			BufferSize:    cfg.Audit.BufferSize,
		}, db, logger)
		if err := auditWriter.Start(ctx); err != nil {
			logger.Error("failed to start audit writer", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, auditWriter)
	}

	sink := event.Multi(sinks...)

	// WebSocket RPC connector shared by every slot
	dialer := wsrpc.NewDialer(wsrpc.Config{
		AuthKey:          cfg.Upstream.AuthKey,
		HandshakeTimeout: cfg.Upstream.HandshakeTimeout.Duration(),
		WriteTimeout:     cfg.Upstream.WriteTimeout.Duration(),
		PingInterval:     cfg.Upstream.PingInterval.Duration(),
		PongTimeout:      cfg.Upstream.PongTimeout.Duration(),
	}, logger)

	// Connection pool
	p := pool.New(pool.Config{
		Addr:           cfg.Upstream.Addr,
		Size:           cfg.Pool.Size,
		StatusInterval: cfg.Pool.StatusInterval.Duration(),
	}, dialer,
		pool.WithStrategy[*wsrpc.Conn](backoff.Exponential{
			Min: cfg.Backoff.MinDelay.Duration(),
			Max: cfg.Backoff.MaxDelay.Duration(),
		}),
		pool.WithSink[*wsrpc.Conn](sink),
		pool.WithLogger[*wsrpc.Conn](logger),
	)

	// Prober (optional)
	var prb *prober.Prober
	if cfg.Prober.Enabled {
		source := prober.SourceFunc(func() []prober.Caller {
			conns := p.GetAllMembers()
			out := make([]prober.Caller, len(conns))
			for i, c := range conns {
				out[i] = c
			}
			return out
		})
		prb = prober.New(prober.Config{
			Interval:    cfg.Prober.Interval.Duration(),
			Concurrency: cfg.Prober.Concurrency,
			CallTimeout: cfg.Prober.CallTimeout.Duration(),
		}, source, logger)
	}

	// Start health and metrics server early so the pool's warm-up is visible
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(p, prb, db, registry, cfg.Metrics.Path),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start the pool
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}

	if prb != nil {
		if err := prb.Start(ctx); err != nil {
			logger.Error("failed to start prober", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("prober running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if prb != nil {
		prb.Stop(shutdownCtx)
	}
	p.Stop(shutdownCtx)
	if auditWriter != nil {
		auditWriter.Stop(shutdownCtx)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("prober stopped")
}

// createHandler builds the HTTP handler for health checks and metrics.
func createHandler(
	p *pool.Pool[*wsrpc.Conn],
	prb *prober.Prober,
	db *pgxpool.Pool,
	registry *prometheus.Registry,
	metricsPath string,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, metrics.Handler(registry))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check pool membership
		stats := p.Stats()
		health.Components["pool"] = map[string]interface{}{
			"expected": stats.Expected,
			"live":     stats.Live,
		}
		if stats.Live < stats.Expected {
			health.Status = "degraded"
		}

		// Check prober progress
		if prb != nil {
			ps := prb.Stats()
			health.Components["prober"] = map[string]interface{}{
				"cycles":   ps.Cycles,
				"probes":   ps.Probes,
				"failures": ps.Failures,
			}
		} else {
			health.Components["prober"] = "disabled"
		}

		// Check audit store
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["audit_store"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["audit_store"] = "connected"
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/slots", func(w http.ResponseWriter, r *http.Request) {
		states := p.States()
		out := make([]string, len(states))
		for i, s := range states {
			out[i] = s.String()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"stats":  p.Stats(),
			"states": out,
		})
	})

	return mux
}
