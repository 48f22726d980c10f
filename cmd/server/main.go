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

	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/config"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/gateway"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/handler"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/health"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/metrics"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/notify"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/orchestrator"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/order"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/ratelimit"
	"github.com/marlonbarreto-git/nimbus-payment-recovery/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Rate limiting: Redis when configured, local memory otherwise or after the first Redis error.
	local := ratelimit.NewMemoryStore(nil)
	var remote ratelimit.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisDialTimeout,
			ReadTimeout: cfg.RedisReadTimeout,
		})
		defer client.Close()
		remote = ratelimit.NewRedisStore(client, nil)
	}
	store := ratelimit.NewFallbackStore(remote, local, logger, m)
	probeCtx, cancelProbe := context.WithTimeout(ctx, cfg.RedisDialTimeout)
	store.Probe(probeCtx)
	cancelProbe()
	go local.RunCleanup(ctx, cfg.CleanupInterval)

	policies := ratelimit.DefaultPolicies()
	monitor := health.NewMonitor(policies)
	limiter, err := ratelimit.NewLimiter(store,
		ratelimit.WithPolicies(policies),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(m),
		ratelimit.WithObserver(monitor),
	)
	if err != nil {
		return err
	}

	db, err := order.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	orders := order.NewRepository(db)

	tracker := retry.NewTracker(retry.NewMemoryStore(), retry.WithMetrics(m))
	notifier := notify.NewNotifier(tracker, orders, notify.NewLogSender(logger),
		notify.WithSiteURL(cfg.SiteURL),
		notify.WithLogger(logger),
		notify.WithMetrics(m),
	)

	var gw gateway.Gateway
	if cfg.StripeSecretKey != "" {
		gw = gateway.NewStripeGateway(cfg.StripeSecretKey, nil)
	} else {
		gw = gateway.NewSimulatedGateway(gateway.SimulatedConfig{
			SuccessRate: cfg.SimulatedSuccessRate,
			MinLatency:  20 * time.Millisecond,
			MaxLatency:  200 * time.Millisecond,
		})
	}

	orch := orchestrator.New(tracker, gw, orders, notifier)
	go orch.Run(ctx, cfg.RetryPollInterval)

	h := handler.New(handler.Deps{
		Orchestrator:  orch,
		Tracker:       tracker,
		Orders:        orders,
		Limiter:       limiter,
		Monitor:       monitor,
		Store:         store,
		Gatherer:      reg,
		WebhookSecret: cfg.StripeWebhookSecret,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"addr", cfg.HTTPAddr,
			"env", cfg.Env,
			"gateway", gw.Name(),
			"rate_limit_store", store.Backend(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
