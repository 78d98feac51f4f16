// Package server wires configuration, storage, mail delivery, login
// throttling and metrics into the REST API and runs it until the process
// is asked to stop.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/pwkeeper/internal/cryptox"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/config"
	"github.com/dmitrijs2005/pwkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/pwkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/pwkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/pwkeeper/internal/server/rest"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/dmitrijs2005/pwkeeper/internal/server/shared/db"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	store      *db.Store
	redis      *redis.Client
	metrics    *metrics.Metrics
	dispatcher *mailer.Dispatcher

	userService       *services.UserService
	authService       *services.AuthService
	credentialService *services.CredentialService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	if err := c.CheckSecrets(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := db.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, store: store, metrics: metrics.New()}
	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	if err := app.store.Migrate(ctx); err != nil {
		return err
	}

	key, err := cryptox.KeyFromConfig(c.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	box, err := cryptox.NewSecretBox(key)
	if err != nil {
		return err
	}

	app.dispatcher = mailer.NewDispatcher(mailer.DispatcherConfig{
		Workers:   c.MailWorkers,
		QueueSize: c.MailQueueSize,
	}, app.mailSender(), app.logger, func(k mailer.Kind, outcome string) {
		app.metrics.ObserveEmail(string(k), outcome)
	})
	notifier := mailer.NewNotifier(
		mailer.NewRenderer(c.ProjectName, c.FrontendURL, c.EmailTokenValidityDuration),
		app.dispatcher, app.logger)

	deps := services.Deps{
		Tx:             app.store.Tx,
		Repos:          app.store.Repos,
		Hasher:         auth.NewPasswordHasher(c.BcryptCost),
		Tokens:         auth.NewTokenManager([]byte(c.SecretKey)),
		OTP:            auth.NewOTP(c.ProjectName),
		Notifier:       notifier,
		Logger:         app.logger,
		EmailTokenTTL:  c.EmailTokenValidityDuration,
		AccessTokenTTL: c.AccessTokenValidityDuration,
	}

	app.userService = services.NewUserService(deps)
	app.authService = services.NewAuthService(deps, app.loginLimiter(ctx), func(o services.LoginOutcome) {
		app.metrics.ObserveLogin(string(o))
	})
	app.credentialService = services.NewCredentialService(deps, box)

	return app.bootstrapSuperuser(ctx)
}

func (app *App) mailSender() mailer.Sender {
	c := app.config
	if !c.EmailsEnabled() {
		app.logger.Warn(context.Background(), "SMTP is not configured, emails will only be logged")
		return mailer.LogSender{Logger: app.logger.With("module", "mailer")}
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		TLS:      c.SMTPTLS,
		SSL:      c.SMTPSSL,
		From:     c.EmailsFromEmail,
		FromName: c.EmailsFromName,
	})
}

// loginLimiter returns nil when no Redis address is configured.
func (app *App) loginLimiter(ctx context.Context) services.LoginLimiter {
	c := app.config
	if c.RedisAddr == "" {
		return nil
	}

	app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
	l := ratelimit.New(app.redis, ratelimit.Config{
		MaxAttempts: c.LoginMaxAttempts,
		Cooldown:    c.LoginCooldown,
	})
	if err := l.Ping(ctx); err != nil {
		app.logger.Warn(ctx, "login throttling degraded", "error", err)
	}
	return l
}

func (app *App) bootstrapSuperuser(ctx context.Context) error {
	c := app.config
	if c.FirstSuperuserEmail == "" || c.FirstSuperuserPassword == "" {
		return nil
	}

	created, err := app.userService.EnsureSuperuser(ctx, c.FirstSuperuserUsername, c.FirstSuperuserEmail, c.FirstSuperuserPassword)
	if err != nil {
		return fmt.Errorf("first superuser: %w", err)
	}
	if created {
		app.logger.Info(ctx, "First superuser created", "email", c.FirstSuperuserEmail)
	}
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewHTTPServer(rest.Options{
		Address:        app.config.EndpointAddrHTTP,
		AllowedOrigins: app.config.AllowedOrigins,
		Metrics:        app.metrics,
	}, app.logger, app.userService, app.authService, app.credentialService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is canceled or a termination signal arrives, then
// drains the mail queue and releases storage.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close()
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close() {
	if app.dispatcher != nil {
		app.dispatcher.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
}
