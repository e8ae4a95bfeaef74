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

	"github.com/go-redis/redis/v8"
	"github.com/jonathan/internship-portal/internal/config"
	"github.com/jonathan/internship-portal/internal/db"
	"github.com/jonathan/internship-portal/internal/events"
	"github.com/jonathan/internship-portal/internal/logging"
	"github.com/jonathan/internship-portal/internal/server"
	"github.com/jonathan/internship-portal/internal/server/ratelimit"
	"github.com/jonathan/internship-portal/internal/storage"
	"github.com/spf13/cobra"
)

const storageTimeout = 30 * time.Second

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the student, company and professor REST endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	jwtCfg, err := cfg.JWT()
	if err != nil {
		return err
	}
	passwordCfg, err := cfg.Password()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	limiterCfg := ratelimit.NewConfig(ratelimit.Settings{
		Enabled:         cfg.RateLimitEnabled,
		DefaultLimit:    cfg.RateLimitDefault,
		DefaultWindow:   cfg.RateLimitWindow,
		CleanupInterval: cfg.RateLimitCleanup,
		Whitelist:       cfg.RateLimitWhitelist,
		Blacklist:       cfg.RateLimitBlacklist,
	})

	local := events.NewLocalBus()
	var (
		bus     events.Bus = local
		limiter *ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := events.NewRedisBridge(local, client, cfg.EventChannel, log)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("event bridge stopped")
			}
		}()
		bus = bridge

		limiter = ratelimit.NewLimiterWithCounter(limiterCfg, ratelimit.NewRedisCounter(client))
		limiter.OnError = func(err error) {
			log.WithError(err).Warn("rate limit counter unavailable, allowing request")
		}
		log.WithField("channel", cfg.EventChannel).Info("redis enabled for events and rate limiting")
	} else {
		limiter = ratelimit.NewLimiter(limiterCfg)
	}
	defer limiter.Stop()

	var documents *storage.Documents
	if cfg.StorageEnabled() {
		client := storage.NewClient(cfg.StorageURL, cfg.StorageKey, cfg.StoragePublicURL, &http.Client{Timeout: storageTimeout})
		documents = storage.NewDocuments(client, log)
	} else {
		log.Warn("object storage not configured, document uploads are disabled")
	}

	srv, err := server.New(server.Config{
		Port:              cfg.Port,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		JWT:               jwtCfg,
		Password:          passwordCfg,
	}, server.Deps{
		Store:     database,
		Bus:       bus,
		Documents: documents,
		Limiter:   limiter,
		Log:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// newRedisClient connects to rawURL and checks the connection.
func newRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// openDatabase loads the configuration and connects, for the operator commands.
func openDatabase(ctx context.Context) (*db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}
