package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/notifications"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/geocoder89/eventpass/internal/queue/redisclient"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
	"github.com/geocoder89/eventpass/internal/queue/worker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("worker shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: "eventpass-worker",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	rc := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.WorkerConcurrency + 4,
	})
	defer func() { _ = rc.Close() }()

	if err := rc.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	queue := redisqueue.New(rc.Raw(), redisqueue.DefaultPrefix)

	// a previous worker may have died mid-job
	if n, err := queue.RecoverProcessing(ctx); err != nil {
		return fmt.Errorf("recover processing: %w", err)
	} else if n > 0 {
		log.Warn("requeued in-flight jobs from a previous run", "count", n)
	}

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}

	host, _ := os.Hostname()
	w := worker.New(worker.Config{
		WorkerID:      host + "-" + strconv.Itoa(os.Getpid()),
		Concurrency:   cfg.WorkerConcurrency,
		PollTimeout:   cfg.WorkerPollTimeout,
		ShutdownGrace: 10 * time.Second,
	}, queue, notifier, log, prom)

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           w.HealthHandler(rc),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker health server failed", "err", err)
		}
	}()
	defer func() {
		sctx, cancel := config.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = healthSrv.Shutdown(sctx)
	}()

	log.Info("worker started", "concurrency", cfg.WorkerConcurrency, "notifier", cfg.Notifier, "health_port", cfg.WorkerPort)
	return w.Run(ctx)
}

func buildNotifier(cfg config.Config, log *slog.Logger) (notifications.Notifier, error) {
	var inner notifications.Notifier

	switch cfg.Notifier {
	case config.NotifierSES:
		ses, err := notifications.NewSESNotifier(notifications.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
			FromAddress:     cfg.SESFromAddress,
			FromName:        "EventPass",
		}, log)
		if err != nil {
			return nil, fmt.Errorf("ses notifier: %w", err)
		}
		inner = ses
	default:
		inner = notifications.NewLogNotifier(log)
	}

	return notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{}), nil
}
