// Command authd runs the passwordless login service: Redis fast tier,
// Postgres durable tier, and the HTTP auth surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/staffbridge/authcore"
	"github.com/staffbridge/authcore/httpapi"
	"github.com/staffbridge/authcore/internal/accounts"
	"github.com/staffbridge/authcore/internal/audit"
	"github.com/staffbridge/authcore/internal/challenge"
	"github.com/staffbridge/authcore/internal/pg"
	"github.com/staffbridge/authcore/internal/rate"
	"github.com/staffbridge/authcore/internal/session"
	"github.com/staffbridge/authcore/mail"
	"github.com/staffbridge/authcore/tokens"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authd exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	db, err := pg.Open(ctx, envOr("DATABASE_URL", "postgres://localhost:5432/authcore?sslmode=disable"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := pg.Migrate(ctx, db); err != nil {
		return err
	}

	manager, err := tokens.NewManager(tokens.Config{
		AccessTTL:     envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SigningMethod: tokens.MethodHS256,
		PrivateKey:    []byte(os.Getenv("JWT_SECRET")),
		Issuer:        envOr("JWT_ISSUER", "authd"),
	})
	if err != nil {
		return err
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    envBool("AUDIT_ENABLED", true),
		BufferSize: envInt("AUDIT_BUFFER", 256),
		DropIfFull: true,
	}, audit.NewJSONWriterSink(os.Stdout))

	var mailer mail.Sender = mail.NoOpSender{}
	if envBool("MAIL_LOG_ONLY", false) {
		mailer = mail.NewLogSender(logger)
	}

	svc, err := authcore.New(authcore.Config{
		Challenge: authcore.ChallengeConfig{
			TTL:         envDuration("CHALLENGE_TTL", 10*time.Minute),
			MaxAttempts: envInt("CHALLENGE_MAX_ATTEMPTS", 5),
		},
		Session: authcore.SessionConfig{
			TTL: envDuration("SESSION_TTL", 8*time.Hour),
		},
		RateLimit: authcore.RateLimitConfig{
			Window:      envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxAttempts: envInt("RATE_LIMIT_MAX", 5),
		},
		Tokens: tokens.Config{
			AccessTTL:  envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL: envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
	}, authcore.Deps{
		Challenges: challenge.NewStore(challenge.NewFastStore(redisClient, ""), challenge.NewPostgresRepository(db)),
		Sessions:   session.NewStore(session.NewFastStore(redisClient, ""), session.NewPostgresRepository(db)),
		Limiter: rate.New(redisClient, "", rate.Config{
			Window:      envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxAttempts: envInt("RATE_LIMIT_MAX", 5),
		}),
		Accounts: accounts.NewPostgresProvider(db),
		Mailer:   mailer,
		Tokens:   manager,
		Audit:    dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	api := httpapi.NewServer(svc, httpapi.Options{
		SecureCookies: envBool("SECURE_COOKIES", true),
		CookieDomain:  os.Getenv("COOKIE_DOMAIN"),
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              envOr("ADDR", ":8080"),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
