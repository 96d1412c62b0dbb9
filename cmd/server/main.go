package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Stewz00/apisecure/internal/config"
	"github.com/Stewz00/apisecure/internal/database"
	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/Stewz00/apisecure/internal/notify"
	"github.com/Stewz00/apisecure/internal/password"
	"github.com/Stewz00/apisecure/internal/ratelimit"
	"github.com/Stewz00/apisecure/internal/repository"
	"github.com/Stewz00/apisecure/internal/server"
	"github.com/Stewz00/apisecure/internal/service"
	"github.com/Stewz00/apisecure/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const sweepInterval = time.Minute

type options struct {
	port    string
	envFile string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	root := &cobra.Command{
		Use:           "apisecure",
		Short:         "Token-authenticated account API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load environment variables from this file instead of .env")
	root.PersistentFlags().StringVar(&opts.port, "port", "", "listen port (overrides PORT)")

	root.AddCommand(serveCmd, &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(opts)
			if err != nil {
				return err
			}
			if err := database.Migrate(cmd.Context(), cfg.DbURL); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	})

	return root
}

func load(opts *options) (*config.Config, *logrus.Logger, error) {
	var files []string
	if opts.envFile != "" {
		files = append(files, opts.envFile)
	}

	// Load configuration
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := load(opts)
	if err != nil {
		return err
	}

	// Initialize database
	if err := database.Migrate(ctx, cfg.DbURL); err != nil {
		return err
	}
	db, err := database.New(ctx, cfg.DbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	registry, m := metrics.NewRegistry()

	// Initialize repositories, services, and handlers
	userRepo := repository.NewUserRepository(db)
	tokens, err := token.NewService(token.Config{
		Secret:      cfg.TokenSecret,
		App:         cfg.AppName,
		Version:     cfg.TokenVersion,
		RecoveryTTL: cfg.RecoveryTTL,
	}, userRepo)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	dispatcher := notify.NewDispatcher(newSender(cfg, logger), notify.DispatcherConfig{}, logger, m)
	defer dispatcher.Close()

	accounts := service.NewAccountService(service.Deps{
		Store:        userRepo,
		Tokens:       tokens,
		Policy:       password.NewPolicy(cfg.WeakPassword),
		Hasher:       password.NewBcrypt(cfg.BcryptCost),
		Limiter:      limiter,
		Notifier:     dispatcher,
		Logger:       logger,
		Metrics:      m,
		ResetURLBase: cfg.ResetURLBase,
	})

	router := server.NewRouter(server.Deps{
		Accounts: accounts,
		Verifier: tokens,
		Users:    userRepo,
		Logger:   logger,
		Metrics:  m,
		Gatherer: registry,
		Health:   db.Ping,
		Version:  cfg.AppVersion,
	})

	// Create server with timeouts
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

func newLimiter(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimitBackend == "redis" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup, rate limiting fails open until it recovers")
		}
		limiter := ratelimit.NewRedis(client, ratelimit.DefaultLimit, ratelimit.DefaultWindow, "apisecure:ratelimit", logger)
		return limiter, func() { _ = client.Close() }, nil
	}

	limiter := ratelimit.NewMemory(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	go limiter.RunSweeper(ctx, sweepInterval)
	return limiter, func() {}, nil
}

func newSender(cfg *config.Config, logger logrus.FieldLogger) notify.Sender {
	if !cfg.SMTPEnabled() {
		logger.Warn("SMTP_HOST not set, notifications are logged instead of sent")
		return notify.NewLogSender(logger)
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
}
