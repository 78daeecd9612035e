package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/capalloc-api/internal/allocation"
	"github.com/ksred/capalloc-api/internal/auth"
	"github.com/ksred/capalloc-api/internal/basis"
	"github.com/ksred/capalloc-api/internal/database"
	"github.com/ksred/capalloc-api/internal/ledger"
	"github.com/ksred/capalloc-api/internal/partnership"
	"github.com/ksred/capalloc-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the allocation API server with graceful
// shutdown support. It sets up all required services, database connections,
// and API routes
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(string(auth.JWTSecret()))
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	partnershipService := partnership.NewService(db)
	partnershipHandlers := partnership.NewGinHandlers(partnershipService)

	ledgerService := ledger.NewService(db, partnershipService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	allocationService := allocation.NewService(db)
	allocationHandlers := allocation.NewGinHandlers(allocationService)

	basisHandlers := basis.NewGinHandlers()

	// Create and start the allocation posting processor
	postingProcessor := allocation.NewProcessor(allocationService.GetDB(), ledgerService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go postingProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, partnershipHandlers, ledgerHandlers, allocationHandlers, basisHandlers, postingProcessor)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Partnership routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	partnershipHandlers *partnership.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	allocationHandlers *allocation.GinHandlers,
	basisHandlers *basis.GinHandlers,
	postingProcessor *allocation.Processor,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Partnership routes
		partnerships := v1.Group("/partnerships")
		partnerships.Use(middleware.JWTAuth())
		{
			partnerships.POST("", partnershipHandlers.CreatePartnershipHandler())
			partnerships.GET("/:partnership_id", partnershipHandlers.GetPartnershipHandler())
			partnerships.GET("/:partnership_id/capital-accounts", ledgerHandlers.GetCapitalAccountsHandler())
			partnerships.POST("/:partnership_id/transactions", ledgerHandlers.RecordTransactionHandler())
			partnerships.GET("/:partnership_id/audit-trail", ledgerHandlers.GetAuditTrailHandler())
			partnerships.POST("/:partnership_id/allocations/calculate", allocationHandlers.CalculateHandler())
			partnerships.GET("/:partnership_id/allocations/:run_id", allocationHandlers.GetRunHandler())
			partnerships.POST("/:partnership_id/basis-adjustment", basisHandlers.AdjustmentHandler())
			partnerships.GET("/:partnership_id/compliance-report", allocationHandlers.ComplianceReportHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/postings/:run_id", postingProcessor.PostRunHandler())
		}
	}
}
