package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/config"
	"github.com/taskmateai/taskmate/internal/database"
	"github.com/taskmateai/taskmate/internal/handlers"
	"github.com/taskmateai/taskmate/internal/logger"
	"github.com/taskmateai/taskmate/internal/middleware"
	"github.com/taskmateai/taskmate/internal/notify"
	"github.com/taskmateai/taskmate/internal/observability"
	"github.com/taskmateai/taskmate/internal/queue"
	"github.com/taskmateai/taskmate/internal/services/chat"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/session"
	"github.com/taskmateai/taskmate/internal/telemetry"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// OpenTelemetry is optional; a missing endpoint only costs tracing.
	var tracerEnabled bool
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "taskmate-api", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracerEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Connect(bootCtx, cfg.DatabaseURL)
	bootCancel()
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisClient, err := middleware.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	reminderQueue := connectQueue(cfg, zapLogger)
	defer func() {
		if err := reminderQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_reminder_queue", zap.Error(err))
		}
	}()

	// Repositories
	taskRepo := database.NewTaskRepository(db)
	userRepo := database.NewUserRepository(db)
	reminderRepo := database.NewReminderLogRepository(db)

	// Shared infrastructure
	metrics := observability.NewMetrics("taskmate")
	sessions := session.NewStore(zapLogger)
	hub := notify.NewHub(zapLogger, metrics, cfg.AllowAnyOrigin)
	scanner := notify.NewScanner(taskRepo, reminderRepo, reminderQueue, hub, zapLogger)
	dispatcher := notify.NewDispatcher(reminderQueue, hub, metrics, zapLogger)

	// Chat pipeline. With no API key the oracle fails at request time and the
	// resolver degrades to its lexical parser, so chat stays usable.
	if cfg.OpenAIKey == "" {
		zapLogger.Warn("openai_api_key_not_configured_using_lexical_fallback")
	}
	oracle := nlp.NewOpenAIOracle(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, zapLogger, debugMode)
	resolver := nlp.NewResolver(sessions, oracle, zapLogger)
	executor := chat.NewExecutor(taskRepo, userRepo, scanner, sessions, zapLogger)
	chatService := chat.NewService(sessions, resolver, executor, metrics, zapLogger)

	// Handlers
	chatHandler := handlers.NewChatHandler(chatService, sessions)
	taskHandler := handlers.NewTaskHandler(taskRepo, scanner, zapLogger)
	healthChecker := handlers.NewHealthChecker(db)

	// Router and middleware. gorilla/mux runs middleware in registration
	// order, so the first Use is the outermost wrapper.
	r := mux.NewRouter()

	if tracerEnabled {
		r.Use(otelmux.Middleware("taskmate-api"))
		zapLogger.Info("otel_middleware_enabled")
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsOrigins := []string{cfg.FrontendURL}
	if cfg.AllowAnyOrigin {
		corsOrigins = []string{"*"}
	}
	corsMW := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !cfg.AllowAnyOrigin,
		MaxAge:           300,
	})
	r.Use(corsMW.Handler)
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", healthChecker.VersionInfo).Methods("GET")
	r.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	r.HandleFunc("/ws", hub.HandleWS)

	// API v1 routes (protected)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.Auth([]byte(cfg.JWTSecret), userRepo, zapLogger))
	apiRouter.Use(rateLimitMW)
	taskHandler.RegisterRoutes(apiRouter)
	chatHandler.RegisterRoutes(apiRouter)

	// Catch-all OPTIONS handler so preflight requests succeed even on routes
	// that don't register the method explicitly.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Background loops
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go sessions.Start(bgCtx, sessionSweepInterval, cfg.SessionIdleTTL)
	go scanner.Run(bgCtx)
	go func() {
		if err := dispatcher.Run(bgCtx); err != nil && err != context.Canceled {
			zapLogger.Error("reminder_dispatcher_stopped_with_error", zap.Error(err))
		}
	}()
	go staleOffsetSweep(bgCtx, hub)
	go archivePurgeLoop(bgCtx, taskRepo, reminderRepo, cfg.ArchiveRetention, zapLogger)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectQueue returns the RabbitMQ-backed reminder queue, retrying with
// exponential backoff to ride out broker startup delays. Without a broker URL
// it falls back to the in-process channel, which is fine for a single node.
func connectQueue(cfg *config.Config, zapLogger *zap.Logger) queue.ReminderQueue {
	if cfg.RabbitMQURL == "" {
		zapLogger.Info("rabbitmq_not_configured_using_memory_queue")
		return queue.NewMemoryQueue(0)
	}

	const maxRetries = 10
	const initialDelay = 2 * time.Second
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}

// staleOffsetSweep drops offset records for users who haven't reconnected in
// a day, so the scanner stops waking up for their timezones.
func staleOffsetSweep(ctx context.Context, hub *notify.Hub) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.CleanupStale(24 * time.Hour)
		}
	}
}

// archivePurgeLoop hard-deletes archived tasks and reminder log rows past the
// retention window, once a day.
func archivePurgeLoop(ctx context.Context, tasks *database.TaskRepository, reminders *database.ReminderLogRepository, retention time.Duration, zapLogger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			purgeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if n, err := tasks.PurgeArchivedBefore(purgeCtx, cutoff); err != nil {
				zapLogger.Error("archive_purge_failed", zap.Error(err))
			} else if n > 0 {
				zapLogger.Info("archive_purged", zap.Int64("tasks", n))
			}
			if n, err := reminders.PurgeBefore(purgeCtx, cutoff); err != nil {
				zapLogger.Error("reminder_log_purge_failed", zap.Error(err))
			} else if n > 0 {
				zapLogger.Info("reminder_log_purged", zap.Int64("rows", n))
			}
			cancel()
		}
	}
}
