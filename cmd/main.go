/*
Package main is the entry point for the chat relay.

It is responsible for loading configuration, initializing the global logging system,
wiring the backend client and the selected message store into the relay, setting up the
HTTP server, and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
so open WebSocket sessions are closed before the process exits.
*/
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

	"chatrelay/internal/app/backend"
	"chatrelay/internal/app/db"
	"chatrelay/internal/app/relay"
	"chatrelay/internal/app/storage"
	"chatrelay/internal/configs"
	"chatrelay/internal/handler"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("backend_url", cfg.BackendURL).
		Dur("backend_timeout", cfg.BackendTimeout).
		Str("storage_driver", cfg.StorageDriver).
		Bool("kick_replaced_sessions", cfg.KickReplacedSessions).
		Msg("Configuration loaded successfully")

	if !cfg.IsDevelopment() && len(cfg.AllowedOrigins) == 0 {
		logx.Warn("ALLOWED_ORIGINS is empty; browser WebSocket connections will be rejected.")
	}

	if cfg.BackendAPIToken == "" {
		logx.Warn("BACKEND_API_TOKEN is not set; messages will be stored with each sender's own token.")
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.BackendURL,
		APIToken: cfg.BackendAPIToken,
		HTTPClient: &http.Client{
			Timeout: cfg.BackendTimeout,
		},
	})

	store, closeStore, err := newMessageStore(ctx, cfg, backendClient)
	if err != nil {
		logx.Fatal(err, "Failed to initialize message store", "driver", cfg.StorageDriver)
	}
	defer closeStore()

	chatRelay := relay.New(relay.NewRegistry(), backendClient, store, relay.Options{
		Timeout:      cfg.BackendTimeout,
		KickReplaced: cfg.KickReplacedSessions,
	})

	wsLimiter := limiter.NewIPRateLimiter(rate.Limit(cfg.WSConnectRate), cfg.WSConnectBurst)
	defer wsLimiter.Close()

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Relay:     chatRelay,
		Config:    cfg,
		WSLimiter: wsLimiter,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Chat relay starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// WebSocket connections are hijacked, so server.Shutdown does not close them.
	chatRelay.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Sessions deregister asynchronously once their sockets close.
	if err := chatRelay.WaitIdle(shutdownCtx); err != nil {
		logx.Warn("Shutdown deadline reached with connections still open.",
			"connections", chatRelay.Connections(),
			"online_users", chatRelay.Registry().Len())
		return
	}

	logx.Info("Server gracefully stopped.")
}

// newMessageStore builds the store selected by STORAGE_DRIVER and a func releasing its resources.
func newMessageStore(ctx context.Context, cfg *configs.AppConfig, backendClient *backend.Client) (backend.MessageStore, func(), error) {
	switch cfg.StorageDriver {
	case configs.StoragePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		logx.Info("Messages will be stored in PostgreSQL.")
		return db.NewMessageStore(pool), pool.Close, nil

	case configs.StorageS3:
		archive, err := storage.NewArchive(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		logx.Info("Messages will be archived in S3.", "bucket", cfg.S3BucketName)
		return archive, func() {}, nil

	default:
		logx.Info("Messages will be stored through the backend API.", "url", cfg.BackendURL+backend.MessagesPath)
		return backendClient, func() {}, nil
	}
}
