// Command boxum-server runs the Boxum account API.
//
// Settings come from the environment, optionally merged from a .env file in
// the working directory. With STORE_BACKEND=memory and no REDIS_URL the
// server runs without external dependencies:
//
//	JWT_SECRET=$(openssl rand -hex 32) STORE_BACKEND=memory go run ./cmd/boxum-server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/internal/config"
	"github.com/Yellowatch/boxumco/internal/httpapi"
	"github.com/Yellowatch/boxumco/internal/logging"
	"github.com/Yellowatch/boxumco/mail"
	"github.com/Yellowatch/boxumco/media"
	otelexport "github.com/Yellowatch/boxumco/metrics/export/otel"
	"github.com/Yellowatch/boxumco/metrics/export/prometheus"
	"github.com/Yellowatch/boxumco/qrcode"
	"github.com/Yellowatch/boxumco/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boxum-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := boxumco.New().
		WithConfig(cfg.EngineConfig()).
		WithLogger(logger).
		WithQRRenderer(qrcode.New())
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(logging.NewAuditSink(logger))
	}

	var pool *pgxpool.Pool
	switch cfg.StoreBackend {
	case "postgres":
		pool, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		store := postgres.New(pool)
		builder = builder.WithCredentialStore(store).WithDeviceStore(store)
	default:
		logger.Warn("using in-memory store; accounts are lost on restart")
		store := boxumco.NewMemoryStore()
		builder = builder.WithCredentialStore(store).WithDeviceStore(store)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rdb)
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}
	builder = builder.WithMailer(mailer)

	var outbox *mail.RedisOutbox
	if rdb != nil {
		outbox = mail.NewRedisOutbox(rdb, "")
		builder = builder.WithRetryQueue(outbox)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	logSecurityReport(logger, engine.SecurityReport())

	meters, shutdownMeters, err := installMeterProvider(cfg.OTelMetricsExporter, cfg.OTelMetricsInterval, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeters(context.WithoutCancel(ctx)) }()
	otelExporter, err := otelexport.New(meters.Meter("github.com/Yellowatch/boxumco"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = otelExporter.Close() }()

	var logos httpapi.LogoStore
	if cfg.LogoUploadsEnabled() {
		client, err := media.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return err
		}
		store, err := media.NewS3LogoStore(client, cfg.S3)
		if err != nil {
			return err
		}
		logos = store
	}

	api, err := httpapi.New(httpapi.Options{
		Engine:         engine,
		Logos:          logos,
		Logger:         logger,
		Metrics:        prometheus.New(engine).Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Ready:          readiness(pool, rdb),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if outbox != nil {
		relay := &mail.Relay{
			Outbox:      outbox,
			Mailer:      mailer,
			Logger:      logger,
			MaxAttempts: cfg.MailRetries,
			Backoff:     cfg.MailBackoff,
		}
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newMailer(cfg config.Config, logger *zap.Logger) (boxumco.Mailer, error) {
	if cfg.MailBackend == "smtp" {
		return mail.NewSMTPMailer(cfg.SMTP)
	}
	return mail.NewLogMailer(logger), nil
}

func readiness(pool *pgxpool.Pool, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func logSecurityReport(logger *zap.Logger, r boxumco.SecurityReport) {
	logger.Info("engine configured",
		zap.String("signing_algorithm", r.SigningAlgorithm),
		zap.Duration("access_ttl", r.AccessTTL),
		zap.Duration("refresh_ttl", r.RefreshTTL),
		zap.Duration("challenge_ttl", r.ChallengeTTL),
		zap.Duration("verification_ttl", r.VerificationTTL),
		zap.Uint32("argon2_memory_kb", r.Argon2.Memory),
		zap.Uint32("argon2_time", r.Argon2.Time),
		zap.Int("min_password_length", r.MinPasswordLength),
		zap.Bool("totp_replay_protection", r.TOTPReplayProtection),
		zap.Bool("throttle", r.ThrottleActive),
		zap.Bool("audit", r.AuditActive),
		zap.Bool("verification_retry", r.VerificationRetryActive),
		zap.Bool("qr_code", r.QRCodeActive),
	)
}
