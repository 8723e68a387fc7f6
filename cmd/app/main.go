// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mbti-report-console/internal/config"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/repository"
	"mbti-report-console/internal/infra/adapters/display"
	"mbti-report-console/internal/infra/adapters/reportapi"
	"mbti-report-console/internal/infra/logging"
	"mbti-report-console/internal/infra/metrics"
	red "mbti-report-console/internal/infra/redis"
	"mbti-report-console/internal/infra/web"
	"mbti-report-console/internal/infra/worker"
	"mbti-report-console/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, debug level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("console stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Metrics ----
	if cfg.Metrics.Enabled {
		metrics.MustRegister(nil)
		metrics.SetBuildInfo(version, commit)
	}

	// ---- Group task store ----
	var store repository.GroupTaskStore
	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		store = red.NewGroupTaskRepo(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		logger.Info().Msg("group task id persisted in redis")
	} else {
		store = red.NewMemoryGroupTaskStore()
		logger.Info().Msg("redis not configured; group task id kept in memory")
	}

	// ---- Report service ----
	svc := reportapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	healthCtx, cancelHealth := context.WithTimeout(ctx, 5*time.Second)
	if h, err := svc.Health(healthCtx); err != nil {
		logger.Warn().Err(err).Str("base_url", cfg.API.BaseURL).Msg("report service not reachable at startup")
	} else {
		logger.Info().Str("status", h.Status).Int("active_tasks", h.ActiveTasks).Msg("report service reachable")
	}
	cancelHealth()

	// ---- Poll loops ----
	pool := worker.NewPool(cfg.Poll.MaxLoops, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Use cases ----
	page := display.NewPage(logger)
	state := usecase.NewAppState()

	quiet := make([]model.SlotID, 0, len(cfg.Console.QuietSlots))
	for _, s := range cfg.Console.QuietSlots {
		quiet = append(quiet, model.SlotID(s))
	}
	pollCfg := usecase.PollerConfig{
		TaskInterval:    cfg.Poll.TaskInterval,
		TaskMaxAttempts: cfg.Poll.TaskMaxAttempts,
		InsightInterval: cfg.Poll.InsightInterval,
		QuietSlots:      quiet,
	}

	coord := usecase.NewTabCoordinator(page, state, store, logger)
	insight := usecase.NewInsightPoller(svc, page, coord, pool, pollCfg, logger)
	tasks := usecase.NewTaskPoller(svc, page, coord, insight, pool, pollCfg, logger)
	reports := usecase.NewReportUseCase(svc, page, coord, tasks, insight, logger)
	coord.Restore(ctx)
	defer coord.Close()

	// ---- HTTP console ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Console.Port),
		Handler:           web.NewServer(reports, page, cfg.Metrics.Enabled, cfg.API.Timeout, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("console listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
