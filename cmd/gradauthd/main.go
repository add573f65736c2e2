// Command gradauthd runs the authentication engine behind its HTTP JSON
// surface. All configuration comes from the environment; with no variables
// set the daemon starts in a development mode with an in-memory directory,
// in-memory token stores, and dry-run mail delivery.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	gradauth "github.com/MrEthical07/gradauth"
	"github.com/MrEthical07/gradauth/directory"
	"github.com/MrEthical07/gradauth/googleid"
	"github.com/MrEthical07/gradauth/httpapi"
	"github.com/MrEthical07/gradauth/mail"
)

type envConfig struct {
	ListenAddr      string        `env:"GRADAUTH_LISTEN_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"GRADAUTH_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	JWTSecret       string        `env:"GRADAUTH_JWT_SECRET"`
	JWTIssuer       string        `env:"GRADAUTH_JWT_ISSUER" envDefault:"gradauth"`
	AccessTTL       time.Duration `env:"GRADAUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL      time.Duration `env:"GRADAUTH_REFRESH_TTL" envDefault:"720h"`
	ProductionMode  bool          `env:"GRADAUTH_PRODUCTION_MODE" envDefault:"false"`
	ExposeDevTokens bool          `env:"GRADAUTH_EXPOSE_DEV_TOKENS" envDefault:"false"`

	AdminEmails []string `env:"GRADAUTH_ADMIN_EMAILS" envSeparator:","`

	RedisAddr     string `env:"GRADAUTH_REDIS_ADDR"`
	RedisPassword string `env:"GRADAUTH_REDIS_PASSWORD"`

	GoogleClientID string `env:"GRADAUTH_GOOGLE_CLIENT_ID"`

	SMTPHost     string `env:"GRADAUTH_SMTP_HOST"`
	SMTPPort     int    `env:"GRADAUTH_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"GRADAUTH_SMTP_USERNAME"`
	SMTPPassword string `env:"GRADAUTH_SMTP_PASSWORD"`
	SMTPFrom     string `env:"GRADAUTH_SMTP_FROM"`
	BaseURL      string `env:"GRADAUTH_BASE_URL" envDefault:"http://localhost:8080"`

	AuditLog       bool `env:"GRADAUTH_AUDIT_LOG" envDefault:"true"`
	MetricsEnabled bool `env:"GRADAUTH_METRICS" envDefault:"true"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("gradauthd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return err
	}

	cfg := gradauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(ec.JWTSecret)
	cfg.JWT.Issuer = ec.JWTIssuer
	cfg.JWT.AccessTTL = ec.AccessTTL
	cfg.Refresh.TTL = ec.RefreshTTL
	cfg.Admin.Emails = ec.AdminEmails
	cfg.Security.ProductionMode = ec.ProductionMode
	cfg.Security.ExposeDevTokens = ec.ExposeDevTokens
	cfg.Audit.Enabled = ec.AuditLog
	cfg.Metrics.Enabled = ec.MetricsEnabled

	if ec.JWTSecret == "" && !ec.ProductionMode {
		// Keeps the zero-config dev experience; Validate rejects this in
		// production mode.
		cfg.JWT.PrivateKey = []byte("gradauth-dev-only-signing-secret")
		logger.Warn("GRADAUTH_JWT_SECRET is unset, using a development-only key")
	}

	builder := gradauth.New().
		WithConfig(cfg).
		WithUserDirectory(directory.NewMemory())

	if ec.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    strings.Split(ec.RedisAddr, ","),
			Password: ec.RedisPassword,
		})
		defer client.Close()
		builder = builder.WithRedis(client)
		logger.Info("token stores backed by redis", "addr", ec.RedisAddr)
	} else {
		logger.Info("token stores are in-memory; tokens do not survive restarts")
	}

	notifier, err := mail.NewSMTPNotifier(mail.Config{
		Host:     ec.SMTPHost,
		Port:     ec.SMTPPort,
		Username: ec.SMTPUsername,
		Password: ec.SMTPPassword,
		From:     ec.SMTPFrom,
		BaseURL:  ec.BaseURL,
	})
	if err != nil {
		return err
	}
	builder = builder.WithNotifier(notifier)
	if notifier.DryRun() {
		logger.Info("no SMTP relay configured, mail delivery runs dry")
	}

	if ec.GoogleClientID != "" {
		verifier, err := googleid.NewVerifier(googleid.Config{ClientID: ec.GoogleClientID})
		if err != nil {
			return err
		}
		builder = builder.WithIdentityVerifier(verifier)
	}

	if ec.AuditLog {
		builder = builder.WithAuditSink(gradauth.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, httpapi.Config{
		ExposeDevTokens: ec.ExposeDevTokens,
		EnableMetrics:   ec.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:              ec.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gradauthd listening", "addr", ec.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", ec.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ec.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	dropped := engine.AuditDropped()
	if dropped > 0 {
		logger.Warn("audit events dropped during run", "count", dropped)
	}
	return nil
}
