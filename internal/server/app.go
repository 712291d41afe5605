// Package server initializes and runs the erpkeeper API server.
// It selects the credential-store backend, wires the session service to its
// collaborators and serves HTTP until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/logging"
	"github.com/dmitrijs2005/erpkeeper/internal/server/auth"
	"github.com/dmitrijs2005/erpkeeper/internal/server/codes"
	"github.com/dmitrijs2005/erpkeeper/internal/server/config"
	"github.com/dmitrijs2005/erpkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/erpkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/erpkeeper/internal/server/notify"
	"github.com/dmitrijs2005/erpkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/erpkeeper/internal/server/services"
	"github.com/dmitrijs2005/erpkeeper/internal/server/storage"
	"github.com/dmitrijs2005/erpkeeper/internal/server/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const serviceName = "erpkeeper"

// Version is stamped at build time with -ldflags.
var Version = "dev"

type App struct {
	config          *config.Config
	logger          logging.Logger
	repos           repomanager.RepositoryManager
	redis           redis.UniversalClient
	nats            *notify.NATSPublisher
	handler         http.Handler
	shutdownTracing telemetry.ShutdownFunc
}

// NewLogger builds the configured logging backend writing to w.
func NewLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	if cfg.LogFormat == "console" {
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		return logging.NewConsole(w, level), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return logging.NewJSON(w, level), nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := NewLogger(c, os.Stdout)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	shutdownTracing, err := telemetry.Init(ctx, serviceName, Version, c.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing init error: %w", err)
	}
	app.shutdownTracing = shutdownTracing

	app.repos, err = repomanager.New(ctx, c)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}

	assets, err := storage.NewS3Store(ctx, storage.Options{
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("asset store init error: %w", err)
	}

	gateway, err := app.newGateway()
	if err != nil {
		return fmt.Errorf("notification gateway init error: %w", err)
	}

	var limiter ratelimit.AttemptLimiter = ratelimit.Nop{}
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		limiter = ratelimit.New(app.redis, c.AttemptLimit, c.AttemptWindow)
	}

	recorder := metrics.New()
	svc := services.NewSessionService(services.Dependencies{
		Accounts: app.repos.Accounts(),
		Tokens:   auth.NewTokenService([]byte(c.AccessTokenSecret), []byte(c.RefreshTokenSecret), c.AccessTokenTTL, c.RefreshTokenTTL),
		Codes:    codes.NewGenerator(c.VerificationCodeTTL),
		Assets:   assets,
		Notifier: gateway,
		Limiter:  limiter,
		Metrics:  recorder,
		Logger:   app.logger,
	}, services.Options{
		BcryptCost:              c.BcryptCost,
		ConcealAccountExistence: c.ConcealAccountExistence,
	})

	cookies, err := httpapi.NewCookiePolicy(c.CookieSecure, c.CookieSameSite, c.CookieDomain, c.AccessTokenTTL, c.RefreshTokenTTL)
	if err != nil {
		return err
	}

	app.handler = httpapi.NewRouter(httpapi.NewHandler(svc, cookies, app.logger), httpapi.RouterOptions{
		AllowedOrigins: c.CORSOrigins,
		RequestsPerMin: c.RequestsPerMin,
		Metrics:        recorder.Handler(),
		Ready:          app.repos.Ping,
		ServiceName:    serviceName,
	})
	return nil
}

func (app *App) newGateway() (notify.Gateway, error) {
	c := app.config
	switch c.NotifySink {
	case "smtp":
		renderer, err := notify.NewRenderer()
		if err != nil {
			return nil, err
		}
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host: c.SMTPHost,
			Port: c.SMTPPort,
			User: c.SMTPUser,
			Pass: c.SMTPPassword,
			From: c.MailFrom,
		}, renderer), nil
	case "nats":
		p, err := notify.NewNATSPublisher(c.NATSURL, c.NATSSubject)
		if err != nil {
			return nil, err
		}
		app.nats = p
		return p, nil
	default:
		return notify.NewLogGateway(app.logger), nil
	}
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM/SIGQUIT arrives,
// then drains in-flight requests within the shutdown timeout.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.HTTPAddr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	app.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown failed", "error", err)
	}
	app.close(shutdownCtx)
	return runErr
}

func (app *App) close(ctx context.Context) {
	if app.nats != nil {
		app.nats.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close failed", "error", err)
		}
	}
	if app.repos != nil {
		if err := app.repos.Close(ctx); err != nil {
			app.logger.Warn(ctx, "store close failed", "error", err)
		}
	}
	if app.shutdownTracing != nil {
		if err := app.shutdownTracing(ctx); err != nil {
			app.logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}
}
