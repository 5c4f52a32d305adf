package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatup/internal/config"
	"chatup/internal/domain"
	"chatup/internal/httpserver"
	"chatup/internal/media"
	"chatup/internal/security"
	"chatup/internal/service"
	"chatup/internal/store/postgres"
	"chatup/internal/store/sqlite"
	"chatup/internal/ws"
)

// @title           chatup API
// @version         1.0
// @description     Two-party real-time chat: accounts, presence and direct messages.

// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)

	db, users, messages, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	defer db.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("database ready")

	tokens := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	sealer, err := security.NewSealer(cfg.EncryptKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize message sealer")
	}

	policy, err := ws.ParseReplacePolicy(cfg.WSReplacePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid replace policy")
	}
	registry := ws.NewRegistry(policy, logger)
	registry.Observe(ws.NewPresence(logger))
	deliverer := ws.NewRouter(registry, logger)

	images := media.NewLocalHost(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxBodyBytes)

	var limiter *httpserver.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, rate limiter will fail open")
		} else {
			logger.Info().Msg("connected to Redis")
		}
		cancel()
		limiter = httpserver.NewRateLimiter(rdb, logger)
	}

	router := httpserver.NewRouter(httpserver.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Users:    users,
		Tokens:   tokens,
		Auth:     service.NewAuthService(users, tokens, hasher),
		UserSvc:  service.NewUserService(users, messages, images),
		Messages: service.NewMessageService(messages, users, sealer, images, deliverer, logger),
		Media:    images,
		Registry: registry,
		Limiter:  limiter,
	})

	// No WriteTimeout: it would cut long-lived websocket connections.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr()).
			Str("env", cfg.Env).
			Str("replace_policy", string(policy)).
			Msg("starting chatup server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked connections; close them explicitly.
	for _, id := range registry.Snapshot() {
		registry.Disconnect(id)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("app", cfg.AppName).Logger()
}

func openStore(cfg *config.Config) (*sql.DB, domain.UserRepository, domain.MessageRepository, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, postgres.NewUserRepo(db), postgres.NewMessageRepo(db), nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, sqlite.NewUserRepo(db), sqlite.NewMessageRepo(db), nil
	}
}
