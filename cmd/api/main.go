package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bizmatters/tour-orchestrator/internal/config"
	"github.com/bizmatters/tour-orchestrator/internal/gateway"
	"github.com/bizmatters/tour-orchestrator/internal/geometry"
	"github.com/bizmatters/tour-orchestrator/internal/history"
	"github.com/bizmatters/tour-orchestrator/internal/metrics"
	"github.com/bizmatters/tour-orchestrator/internal/orchestration"
	"github.com/bizmatters/tour-orchestrator/internal/solver"

	_ "github.com/bizmatters/tour-orchestrator/docs" // swagger docs
)

// @title Tour Orchestrator API
// @version 1.0
// @description Generates point sets on 3-D manifolds and orders them into closed tours
// @description with an external tour engine (Concorde linkern).

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize OpenTelemetry
	tp, err := initTracer()
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	solveMetrics, err := metrics.NewSolveMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Run history is optional
	var pool *pgxpool.Pool
	var runStore *history.Store
	if cfg.DatabaseURL != "" {
		pool = connectDatabase(cfg.DatabaseURL)
		defer pool.Close()

		runStore = history.NewStore(pool)
		if err := runStore.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare run history: %v", err)
		}
	} else {
		log.Println("DATABASE_URL not set, run history disabled")
	}

	if _, err := os.Stat(cfg.Solver.Path); err != nil {
		log.Printf(`{"level":"warn","message":"tour engine not found","path":%q,"error":%q}`, cfg.Solver.Path, err.Error())
	}

	// Initialize solver and orchestration layers
	engine := solver.NewGateway(solver.Config{
		Path:                   cfg.Solver.Path,
		Args:                   cfg.Solver.Args,
		Timeout:                cfg.Solver.Timeout,
		MaxConsecutiveFailures: cfg.Solver.BreakerMaxFailures,
	})

	opts := []orchestration.Option{orchestration.WithMetrics(solveMetrics)}
	if runStore != nil {
		opts = append(opts, orchestration.WithRecorder(runStore))
	}
	orchestrationService := orchestration.NewService(engine, geometry.NewGenerator(), orchestration.Config{
		ScratchDir:  cfg.Scratch.Dir,
		KeepScratch: cfg.Scratch.Keep,
		MaxPoints:   cfg.MaxPoints,
	}, opts...)

	// Initialize gateway layer. A nil store must stay a nil interface.
	var runs gateway.RunLister
	if runStore != nil {
		runs = runStore
	}
	gatewayHandler := gateway.NewHandler(orchestrationService, runs)
	tourStream := gateway.NewTourStream(orchestrationService)

	// Setup Gin router
	router := gin.Default()

	// Add structured JSON logging middleware
	router.Use(structuredLoggingMiddleware())

	// Health checks MUST be at the root for the WebService standard
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if !engine.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "tour engine circuit breaker is open",
			})
			return
		}
		if pool != nil {
			if err := pool.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"error":  "database connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	gateway.RegisterRoutes(api, gatewayHandler, tourStream)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Solves block the request until the engine exits
		WriteTimeout: cfg.Solver.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting Tour Orchestrator API server on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Printf("Failed to flush traces: %v", err)
	}

	log.Println("Server exited")
}

// connectDatabase connects to PostgreSQL with retry logic
func connectDatabase(dbURL string) *pgxpool.Pool {
	log.Println("Connecting to PostgreSQL database...")
	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(context.Background(), dbURL)
		if err == nil {
			err = pool.Ping(context.Background())
			if err == nil {
				break
			}
			pool.Close()
		}
		log.Printf("Waiting for database... (attempt %d/10): %v", i+1, err)
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}

	log.Println("Connected to PostgreSQL database")
	return pool
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}

// structuredLoggingMiddleware provides structured JSON logging for all requests
func structuredLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)

		logEntry := map[string]interface{}{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			logEntry["errors"] = c.Errors.String()
		}

		logJSON, _ := json.Marshal(logEntry)
		log.Println(string(logJSON))
	}
}
