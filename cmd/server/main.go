/*
Package main is the entry point for the chatwire server.

It is responsible for loading configuration, initializing the global logging
system, selecting the persistence backend, wiring the transport, handshake,
login registry, and chat modules together, and gracefully handling operating
system interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatwire/internal/auth"
	"chatwire/internal/chat"
	"chatwire/internal/configs"
	"chatwire/internal/db"
	"chatwire/internal/handler"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/transport"
	"chatwire/internal/users"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("auth_type", cfg.AuthType).
		Bool("reject_duplicate_login", cfg.RejectDuplicateLogin).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Select the persistence backend. A store that exists but cannot be
	// read is fatal before the listener ever opens.
	var (
		pool         *pgxpool.Pool
		userStore    users.Store
		verifier     auth.CredentialVerifier
		historyStore chat.HistoryStore
	)

	if cfg.DatabaseDSN != "" {
		pool, err = db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		pgStore := users.NewPGStore(pool)
		userStore = pgStore
		verifier = pgStore
		historyStore = chat.NewPGHistoryStore(pool, cfg.HistoryCapacity)
	} else {
		fileStore, err := users.NewFileStore(cfg.UserStorePath)
		if err != nil {
			logx.Fatal(err, "Failed to open user store")
		}
		userStore = fileStore
		verifier = fileStore
		historyStore = chat.NewFileHistoryStore(cfg.HistoryStorePath)
	}

	// Wire the transport and the feature modules.
	server := transport.NewNetServer(fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port))

	authenticator, err := auth.NewServerAuthenticator(server, server, verifier, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize authenticator")
	}

	userManager, err := users.NewServerUserManager(server, server, authenticator, userStore, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize user manager")
	}

	chatRoom, err := chat.NewServerChat(server, server, authenticator, userManager, historyStore, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize chat")
	}

	if err := server.Start(); err != nil {
		logx.Fatal(err, "Failed to start listener")
	}
	logx.Info(fmt.Sprintf("chatwire server listening on %s", server.Addr()))

	// Optional WebSocket bridge; browsers join the same room as TCP clients.
	var wsServer *http.Server
	if cfg.WSPort != 0 {
		allowedOrigins := cfg.AllowedOrigins
		if cfg.Environment == "development" {
			allowedOrigins = nil
		}

		mux := http.NewServeMux()
		mux.Handle("/ws", transport.WSHandler(server, allowedOrigins))

		wsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.WSPort),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logx.Info(fmt.Sprintf("WebSocket bridge listening on %s", wsServer.Addr))
			if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Fatal(err, "WebSocket bridge failed")
			}
		}()
	}

	// Optional read-only admin API.
	var adminServer *http.Server
	if cfg.AdminPort != 0 {
		deps := &handler.AppDeps{
			Config: cfg,
			Users:  userManager,
			Chat:   chatRoom,
		}

		adminServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.AdminPort),
			Handler:      handler.Router(deps),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logx.Info(fmt.Sprintf("Admin API listening on %s", adminServer.Addr))
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Fatal(err, "Admin API failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Admin API forced to shutdown")
		}
	}
	if wsServer != nil {
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "WebSocket bridge forced to shutdown")
		}
	}

	server.Stop()

	if err := chatRoom.Close(); err != nil {
		logx.Error(err, "Failed to checkpoint chat history")
	}
	if err := userStore.Close(); err != nil {
		logx.Error(err, "Failed to checkpoint user store")
	}
	if pool != nil {
		pool.Close()
	}

	logx.Info("Server gracefully stopped.")
}
