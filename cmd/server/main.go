package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/fugboizz/hanet-attendance-api/internal/config"
	"github.com/fugboizz/hanet-attendance-api/internal/database"
	"github.com/fugboizz/hanet-attendance-api/internal/handlers"
	"github.com/fugboizz/hanet-attendance-api/internal/metrics"
	"github.com/fugboizz/hanet-attendance-api/internal/services"
	"github.com/fugboizz/hanet-attendance-api/internal/utils"
	"github.com/fugboizz/hanet-attendance-api/pkg/hanet"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Initialize logger
	logger := utils.NewLogger()
	logger.Info().Msg("Starting HANET attendance proxy")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.Info().Msg("Running in development mode")
	}

	// Resolve the timezone used for HH:MM:SS renderings
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown timezone, falling back to UTC")
		loc = time.UTC
	}

	// Optional Redis cache for place/device lists
	var cache *database.CacheClient
	if cfg.Redis.Enabled {
		logger.Info().Msg("Connecting to Redis")
		cache, err = database.NewCacheClient(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	m := metrics.New()

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestIDMiddleware())
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(handlers.CORSMiddleware(cfg.AllowedOrigins))

	// Register one pipeline per configured tenant
	requestTimeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	tenantNames := make([]string, 0, len(cfg.Tenants))
	for _, tenant := range cfg.Tenants {
		tenantLogger := logger.With().Str("tenant", tenant.Name).Logger()
		recorder := m.ForTenant(tenant.Name)

		tokens := hanet.NewTokenCache(tenant.TokenURL, tenant.ClientID, tenant.ClientSecret, tenant.RefreshToken, tenantLogger)
		client := hanet.NewClient(hanet.Config{
			BaseURL:        tenant.BaseURL,
			PageSize:       cfg.Fetch.PageSize,
			EmptyPageLimit: cfg.Fetch.EmptyPageLimit,
			MaxPages:       cfg.Fetch.MaxPages,
		}, tokens, tenantLogger, recorder)

		service := services.NewCheckinService(
			tenant.Name,
			client,
			services.WindowPlanner{LookbackDays: tenant.LookbackDays},
			services.NewAggregator(loc),
			cache,
			recorder,
			tenantLogger,
		)

		logger.Info().Str("tenant", tenant.Name).Str("prefix", tenant.RoutePrefix).Msg("Registering tenant routes")
		handlers.RegisterTenantHandlers(router, tenant.RoutePrefix, service, tenantLogger, requestTimeout)
		tenantNames = append(tenantNames, tenant.Name)
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "API Server is running! Tenants: %v", tenantNames)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Setup server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Msgf("Starting server on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.GracefulShutdownSeconds)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exiting")
}
