package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-provisioner/cmd/mainconfig"
	"github.com/wolfman30/telehealth-provisioner/internal/api/router"
	"github.com/wolfman30/telehealth-provisioner/internal/app/bootstrap"
	appconfig "github.com/wolfman30/telehealth-provisioner/internal/config"
	"github.com/wolfman30/telehealth-provisioner/internal/observability/metrics"
	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth meeting provisioner",
		"env", cfg.Env,
		"port", cfg.Port,
		"lead", cfg.LeadTime(),
		"interval", cfg.TickInterval(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("provisioner exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Provisioner exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	store, closeStore, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, provisioningMetrics := setupMetrics()

	scheduler, err := bootstrap.BuildScheduler(cfg, bootstrap.SchedulerDeps{
		Store:     store,
		Provider:  bootstrap.BuildMeetingProvider(cfg, logger),
		Email:     bootstrap.BuildEmailSender(cfg, awsCfg, logger),
		Publisher: bootstrap.BuildPublisher(cfg, awsCfg, logger),
		Locker:    bootstrap.BuildTickLocker(cfg, redisClient, logger),
		Metrics:   provisioningMetrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:         logger,
			MetricsHandler: metricsHandler,
			Checks:         healthChecks(redisClient),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	stop := scheduler.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down provisioner...")
	case err = <-serverErr:
		logger.Error("ops server error", "error", err)
	}

	// in-flight provisioning finishes before the process exits
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("ops server forced to shutdown", "error", shutdownErr)
	}
	logger.Info("provisioner stopped")
	return err
}

func setupMetrics() (http.Handler, *metrics.ProvisioningMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewProvisioningMetrics(reg)
}

func healthChecks(redisClient *redis.Client) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
