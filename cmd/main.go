package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	agentclient "issuebroker/clients/agent"
	anthropicclient "issuebroker/clients/anthropic"
	githubclient "issuebroker/clients/github"
	"issuebroker/config"
	"issuebroker/cryptobox"
	"issuebroker/db"
	"issuebroker/handlers"
	"issuebroker/middleware"
	"issuebroker/services/credentials"
	"issuebroker/services/dispatch"
	"issuebroker/services/tokens"
	"issuebroker/services/txmanager"
	"issuebroker/usecases/webhooks"
)

func main() {
	if err := run(); err != nil {
		log.Printf("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize error alert middleware
	alertMiddleware := middleware.NewErrorAlertMiddleware(middleware.SlackAlertConfig{
		WebhookURL:  cfg.AlertingConfig.SlackWebhookURL,
		Environment: cfg.Environment,
		AppName:     "issuebroker",
		LogsURL:     cfg.ServerLogsURL,
	})

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Initialize repositories with shared connection
	credentialsRepo := db.NewPostgresTenantCredentialsRepository(dbConn, cfg.DatabaseSchema)
	secretsRepo := db.NewPostgresDeploymentSecretsRepository(dbConn, cfg.DatabaseSchema)

	// Initialize transaction manager
	txManager := txmanager.NewTransactionManager(dbConn)

	box, err := cryptobox.New(cfg.EncryptionConfig.Key)
	if err != nil {
		return err
	}

	githubClient := githubclient.NewGitHubClient()
	agentClient := agentclient.NewAgentClient(cfg.AgentConfig.URL)
	anthropicClient := anthropicclient.NewAnthropicClient()

	credentialsService := credentials.NewCredentialsService(credentialsRepo, secretsRepo, txManager, box, anthropicClient)
	tokensService := tokens.NewTokensService(credentialsService, githubClient)
	dispatchService := dispatch.NewDispatchService()

	webhooksUseCase := webhooks.NewWebhooksUseCase(
		credentialsService,
		tokensService,
		dispatchService,
		agentClient,
		githubClient,
		cfg.AgentConfig.DispatchTimeout,
	)

	webhooksHandler := handlers.NewGitHubWebhooksHandler(credentialsService, webhooksUseCase)
	controlPlaneHandler := handlers.NewControlPlaneHandler(credentialsService, tokensService, webhooksUseCase)
	authMiddleware := middleware.NewAdminAuthMiddleware(cfg.ControlPlaneConfig.AdminAPIKey)

	// Create a new router
	router := mux.NewRouter()

	// Setup endpoints with the new router
	webhooksHandler.SetupEndpoints(router)
	controlPlaneHandler.SetupEndpoints(router, authMiddleware)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Printf("❌ Failed to write health check response: %v", err)
		}
	}).Methods("GET")

	// Start periodic purge of expired cached installation tokens
	cleanupTicker := time.NewTicker(10 * time.Minute)
	go func() {
		for range cleanupTicker.C {
			_ = alertMiddleware.WrapBackgroundTask("ClearExpiredCachedTokens", func() error {
				_, err := credentialsService.ClearExpiredCachedTokens(context.Background())
				return err
			})()
		}
	}()
	defer cleanupTicker.Stop()

	// Setup CORS middleware
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Setup and handle graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           alertMiddleware.HTTPMiddleware(c.Handler(router)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return handleGracefulShutdown(server)
}

func handleGracefulShutdown(server *http.Server) error {
	// Channel to listen for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Listening on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-stop
	log.Printf("🛑 Shutdown signal received, cleaning up...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
		return err
	}

	log.Printf("✅ Server stopped gracefully")
	return nil
}
