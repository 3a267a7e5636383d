package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/iudanet/tourbook/internal/notify"
	"github.com/iudanet/tourbook/internal/payment"
	"github.com/iudanet/tourbook/internal/server/handlers"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/storage/sqlite"
	"github.com/iudanet/tourbook/internal/server/token"
	"github.com/iudanet/tourbook/internal/server/webhookdedup"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

type config struct {
	addr          string
	dbPath        string
	webhookDBPath string
	jwtSecret     string
	webhookSecret string
	tokenTTL      time.Duration
	cookieTTL     time.Duration
	resetTTL      time.Duration
	verbose       bool
}

func main() {
	showVersion := flag.Bool("version", false, "Show version information")

	var cfg config
	flag.StringVar(&cfg.addr, "addr", envOr("TOURBOOK_ADDR", ":8080"), "Listen address")
	flag.StringVar(&cfg.dbPath, "db", envOr("TOURBOOK_DB", "tourbook.db"), "SQLite database path")
	flag.StringVar(&cfg.webhookDBPath, "webhook-db", envOr("TOURBOOK_WEBHOOK_DB", "webhooks.db"), "Webhook dedup database path")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", os.Getenv("TOURBOOK_JWT_SECRET"), "JWT signing secret")
	flag.StringVar(&cfg.webhookSecret, "webhook-secret", os.Getenv("TOURBOOK_WEBHOOK_SECRET"), "Payment webhook signing secret")
	flag.DurationVar(&cfg.tokenTTL, "token-ttl", envDurationOr("TOURBOOK_TOKEN_TTL", 24*time.Hour), "Session token lifetime")
	flag.DurationVar(&cfg.cookieTTL, "cookie-ttl", envDurationOr("TOURBOOK_COOKIE_TTL", 24*time.Hour), "Session cookie lifetime")
	flag.DurationVar(&cfg.resetTTL, "reset-ttl", envDurationOr("TOURBOOK_RESET_TTL", 10*time.Minute), "Password reset token lifetime")
	flag.BoolVar(&cfg.verbose, "verbose", os.Getenv("TOURBOOK_VERBOSE") == "1", "Verbose error responses with stack traces")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger, cfg); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg config) error {
	if cfg.jwtSecret == "" {
		return fmt.Errorf("jwt secret must be set (flag -jwt-secret or TOURBOOK_JWT_SECRET)")
	}
	if cfg.webhookSecret == "" {
		return fmt.Errorf("webhook secret must be set (flag -webhook-secret or TOURBOOK_WEBHOOK_SECRET)")
	}

	store, err := sqlite.New(context.Background(), cfg.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	dedup, err := webhookdedup.Open(cfg.webhookDBPath)
	if err != nil {
		return fmt.Errorf("failed to open webhook store: %w", err)
	}
	defer dedup.Close()

	users := sqlite.NewUserRepo(store)
	reviews := sqlite.NewReviewRepo(store)
	tours := sqlite.NewTourRepo(store, reviews)
	bookings := sqlite.NewBookingRepo(store)

	tokens := token.NewService(cfg.jwtSecret, cfg.tokenTTL, cfg.cookieTTL)
	mailer := &notify.LogMailer{Logger: logger}
	payments := payment.NewLocalProvider(cfg.webhookSecret)

	resp := &handlers.Responder{Logger: logger, Verbose: cfg.verbose}
	auth := middleware.NewAuth(logger, tokens, users, resp.Error)

	h := &handlers.Handlers{
		Auth:     handlers.NewAuthHandler(logger, resp, users, tokens, mailer, cfg.resetTTL),
		Users:    handlers.NewUserHandler(resp, users),
		Tours:    handlers.NewTourHandler(resp, tours),
		Reviews:  handlers.NewReviewHandler(logger, resp, reviews),
		Bookings: handlers.NewBookingHandler(logger, resp, bookings, tours, users, payments, dedup),
	}

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           handlers.Routes(h, auth, logger, resp.Error),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("server starting",
		slog.String("addr", cfg.addr),
		slog.String("version", Version))
	return srv.ListenAndServe()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func printVersion() {
	fmt.Printf("Tourbook Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
