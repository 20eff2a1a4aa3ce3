package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roundrobin/onboarding-service/internal/auth"
	"roundrobin/onboarding-service/internal/config"
	"roundrobin/onboarding-service/internal/files"
	"roundrobin/onboarding-service/internal/httpapi"
	"roundrobin/onboarding-service/internal/logging"
	"roundrobin/onboarding-service/internal/notify"
	"roundrobin/onboarding-service/internal/storage"
	"roundrobin/onboarding-service/internal/store/postgres"
	"roundrobin/onboarding-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "onboarding-service",
		Short:         "Merchant onboarding API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  func(cmd *cobra.Command, _ []string) error { return migrate(cmd.Context()) },
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("onboarding-service: %v", err)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return pool, nil
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DB_DSN is required")
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		log.Printf("migrate: schema up to date")
	}
	for _, name := range applied {
		log.Printf("migrate: applied %s", name)
	}
	return nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service := cfg.ServiceName()

	shutdownTelemetry, traced := telemetry.Setup(telemetry.Options{
		ServiceName: service,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()
	sink := logging.New(service, traced)

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	st := postgres.NewStore(pool)
	fileSvc := files.NewService(st, objects, sink, files.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		TestPrefix:     !cfg.Production(),
	})
	handler := httpapi.NewHandler(st, fileSvc, httpapi.Options{
		Issuer: auth.NewIssuer(cfg.JWTSecret),
		Notifier: notify.New(notify.Config{
			Provider:     cfg.NotifyProvider,
			WebhookURL:   cfg.NotifyWebhookURL,
			WebhookToken: cfg.NotifyWebhookToken,
		}),
		Log:             sink,
		SignupSecret:    cfg.SignupSecret,
		AppURL:          cfg.AppURL,
		SecureCookies:   cfg.Production(),
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		AllowedOrigins:  cfg.AllowedOrigins,
		APIKeys:         cfg.APIKeys,
		LoggerPerMinute: cfg.LoggerRateLimitPerMinute,
		TrustProxy:      cfg.TrustProxyHeaders,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
		TrustProxy:  cfg.TrustProxyHeaders,
	})

	otelHandler := otelhttp.NewHandler(httpapi.RequestIDMiddleware(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes()))), service)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelHandler,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads stream the whole document through the request body.
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", service, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}
