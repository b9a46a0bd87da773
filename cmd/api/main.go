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

	"github.com/geocoder89/eventpass/internal/auth"
	"github.com/geocoder89/eventpass/internal/catalog"
	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/db"
	httpx "github.com/geocoder89/eventpass/internal/http"
	"github.com/geocoder89/eventpass/internal/http/handlers"
	"github.com/geocoder89/eventpass/internal/http/middlewares"
	"github.com/geocoder89/eventpass/internal/observability"
	"github.com/geocoder89/eventpass/internal/queue/redisclient"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
	"github.com/geocoder89/eventpass/internal/repo"
	"github.com/geocoder89/eventpass/internal/service"
	"github.com/geocoder89/eventpass/internal/storage"
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
		log.Error("api stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: "eventpass-api",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	stores, err := repo.Open(ctx, cfg, prom)
	if err != nil {
		return err
	}
	defer stores.Close()

	if created, err := db.EnsureAdminUser(ctx, stores.Users, cfg); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	} else if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	rc := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rc.Close() }()
	if err := rc.Ping(ctx); err != nil {
		// admissions still succeed; confirmations are lost until redis is back
		log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	queue := redisqueue.New(rc.Raw(), redisqueue.DefaultPrefix)

	blobs, err := storage.NewLocalStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	events := catalog.NewCached(stores.Events, cfg.CatalogCacheTTL)
	svc := service.NewRegistrationService(events, stores.Registrations, service.Options{
		Logger:  log,
		Queue:   queue,
		Metrics: prom,
		Proofs:  blobs,
	})

	limiter := middlewares.NewRateLimiter(middlewares.LimiterConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	})
	go limiter.Run(ctx)

	checks := map[string]handlers.Check{"redis": rc.Ping}
	if stores.Ping != nil {
		checks[stores.Driver] = stores.Ping
	}

	router := httpx.NewRouter(httpx.Deps{
		Log:            log,
		Env:            cfg.Env,
		Prom:           prom,
		Tokens:         auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL),
		Users:          stores.Users,
		Events:         stores.Events,
		EventCache:     events,
		Purger:         stores.Registrations,
		Registrations:  svc,
		Blobs:          blobs,
		Jobs:           queue,
		Checks:         checks,
		Limiter:        limiter,
		CORSOrigins:    cfg.CORSOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", stores.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
