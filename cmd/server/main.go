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

	"golang.org/x/time/rate"

	"github.com/fuomag9/paperdrive/internal/api"
	"github.com/fuomag9/paperdrive/internal/config"
	"github.com/fuomag9/paperdrive/internal/credentials"
	"github.com/fuomag9/paperdrive/internal/crypto"
	"github.com/fuomag9/paperdrive/internal/database"
	"github.com/fuomag9/paperdrive/internal/jobs"
	"github.com/fuomag9/paperdrive/internal/lease"
	"github.com/fuomag9/paperdrive/internal/library"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/metadata"
	"github.com/fuomag9/paperdrive/internal/oauth"
	"github.com/fuomag9/paperdrive/internal/storage"
	"github.com/fuomag9/paperdrive/internal/summary"
	"github.com/fuomag9/paperdrive/internal/topics"
	"github.com/fuomag9/paperdrive/internal/workspace"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cipher, err := crypto.NewFromBase64(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid encryption key", "error", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database connection", "error", err)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// Identity provider
	oauthClient := oauth.NewClient(cfg.OAuth, httpClient)
	verifier := oauth.NewVerifier(httpClient, cfg.OAuth.JWKSURL, cfg.OAuth.ClientID, cfg.OAuth.Issuers)
	handshake := oauth.NewHandshake(
		oauth.NewGormSessionRepository(db),
		oauthClient,
		verifier,
		cfg.OAuth.RedirectURL,
		cfg.OAuth.StateTTL,
		log,
	)

	creds := credentials.NewStore(credentials.NewGormRepository(db), cipher, oauthClient, log)
	workspaces := workspace.NewDirectory(db, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Topic lease: shared through Redis when configured, in-process otherwise
	var locker lease.Locker
	if cfg.Lease.RedisAddr != "" {
		redisLocker, err := lease.NewRedis(ctx, cfg.Lease.RedisAddr, cfg.Lease.TTL, cfg.Lease.Wait, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		log.Info("REDIS_ADDR not set, topic leases are local to this process")
		locker = lease.NewLocal(cfg.Lease.Wait)
	}

	var summarizer summary.Summarizer = summary.NewLead()
	if cfg.SummarizerURL != "" {
		summarizer = &summary.Fallback{
			Primary:   summary.NewHTTP(cfg.SummarizerURL, httpClient),
			Secondary: summarizer,
			OnError: func(err error) {
				log.Warn("Summarizer unavailable, using lead extract", "error", err)
			},
		}
	}

	lib := library.New(library.Deps{
		Handshake:  handshake,
		Creds:      creds,
		Workspaces: workspaces,
		Connector:  storage.NewDriveConnector(httpClient),
		Topics:     topics.NewStore(log),
		Locker:     locker,
		Metadata:   metadata.NewResolver(cfg.DOIResolver, httpClient),
		Summarizer: summarizer,
	}, log)

	// Initialize job scheduler
	scheduler := jobs.NewScheduler(handshake, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("Failed to start scheduler", "error", err)
	}
	defer scheduler.Stop()

	limiter := api.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	limiter.CleanupOldLimiters(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(cfg, lib, limiter, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server failed", "error", err)
	}

	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
