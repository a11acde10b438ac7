package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/events"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/flags"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/guard"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/handler"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/repository"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/resolver"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/config"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/httputil"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("access-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("access-service", cfg.Server.Environment)
	log.Info().Msg("starting Access Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher and recorders
	publisher, err := events.NewAccessPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	auditRecorder := events.NewAuditRecorder(publisher, cfg.Kernel.AuditQueueSize, log)
	defer auditRecorder.Close()
	usageRecorder := events.NewUsageRecorder(publisher, cfg.Kernel.UsageQueueSize, log)
	defer usageRecorder.Close()

	// Optional flag definition cache (disabled when no Redis address is set)
	flagCache := flags.NewCache(&cfg.Redis, log)
	defer flagCache.Close()

	// Initialize repositories
	hierarchyRepo := repository.NewHierarchyRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	overrideRepo := repository.NewOverrideRepository(db)
	flagRepo := repository.NewFlagRepository(db)

	// Initialize kernel components
	tenantGuard := guard.New(auditRecorder, &cfg.Kernel, log)
	permResolver := resolver.New(hierarchyRepo, assignmentRepo, overrideRepo, log)
	flagEvaluator := flags.NewEvaluator(flagRepo, flagCache, usageRecorder, log)

	// Initialize services
	accessService := service.NewAccessService(tenantGuard, permResolver, auditRecorder, log)
	adminService := service.NewAdminService(hierarchyRepo, assignmentRepo, overrideRepo, auditRecorder, log)
	flagService := service.NewFlagService(flagRepo, flagEvaluator, flagCache, auditRecorder, log)

	// Initialize handlers
	accessHandler := handler.NewAccessHandler(accessService, log)
	adminHandler := handler.NewAdminHandler(adminService, log)
	flagHandler := handler.NewFlagHandler(flagService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS - supports subdomain-based multi-tenancy
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Allow localhost variations (development)
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.localhost:3000 tenant subdomains for development
			if len(origin) > 21 && origin[len(origin)-15:] == ".localhost:3000" {
				return true
			}
			// Allow *.marketedge.io tenant subdomains for production
			if len(origin) > 14 && origin[len(origin)-14:] == ".marketedge.io" {
				return true
			}
			if origin == "https://marketedge.io" {
				return true
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Cross-Tenant"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside the principal middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "access-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"cache":    flagCache.Health(r.Context()),
		})
	})

	// API routes require an authenticated principal
	r.Group(func(r chi.Router) {
		r.Use(httputil.PrincipalMiddleware(cfg.JWT.Secret))
		handler.RegisterRoutes(r, accessHandler, adminHandler, flagHandler)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
