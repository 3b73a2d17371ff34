package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/chat"
	"github.com/northlane/livechat-server/internal/config"
	"github.com/northlane/livechat-server/internal/database"
	"github.com/northlane/livechat-server/internal/handler"
	"github.com/northlane/livechat-server/internal/jobs"
	"github.com/northlane/livechat-server/internal/middleware"
	"github.com/northlane/livechat-server/internal/redis"
	"github.com/northlane/livechat-server/internal/repository"
	"github.com/northlane/livechat-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	chatSessionRepo := repository.NewChatSessionRepository(db.DB)
	chatMessageRepo := repository.NewChatMessageRepository(db.DB)
	adminSessionRepo := repository.NewAdminSessionRepository(db.DB)

	chatService := service.NewChatService(db, chatSessionRepo, chatMessageRepo, cfg.HistoryLimit, cfg.MaxMessageLength)
	adminService := service.NewAdminService(adminSessionRepo, cfg.AdminPasswordHash, cfg.AdminSessionSecret)

	registry := chat.NewRegistry()
	dispatcher := chat.NewDispatcher(registry)
	chatHandler := chat.NewHandler(chatService, registry, dispatcher)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	var connectLimiter middleware.Limiter = middleware.NewMemoryRateLimiter()
	if cfg.RedisEnabled() {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		relay := chat.NewRedisRelay(redisClient, dispatcher)
		if err := relay.Subscribe(relayCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to fan-out channel")
		}
		dispatcher.SetRelay(relay)
		connectLimiter = service.NewRateLimiter(redisClient.Client)
	} else {
		log.Info().Msg("REDIS_URL not set: using in-process fan-out")
	}

	chatServer := chat.NewServer(chatHandler, adminService, chat.ServerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		FrameRate:      cfg.FrameRatePerSec,
		FrameBurst:     cfg.FrameBurst,
		QueueSize:      config.WSSendBufferSize,
	})

	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(adminService)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(middleware.MessageBodyLimit(cfg.MaxMessageLength))
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	connectLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		connectLimiter, cfg.VisitorConnectsPerMin, time.Minute, redis.ConnectLimitKey,
	)

	restChatHandler := handler.NewChatHandler(chatService, chatHandler, registry)
	adminHandler := handler.NewAdminHandler(
		adminService, adminAuthMiddleware.Handler, csrfMiddleware.Handler, restChatHandler, isProduction,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Websocket connections outlive the request timeout, so the upgrade
	// route sits outside the timeout group.
	r.With(connectLimitMiddleware.Handler).Get("/ws/chat", chatServer.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"status":      "ok",
				"timestamp":   time.Now().UnixMilli(),
				"connections": registry.Count(),
			})
		})

		r.Handle("/metrics", promhttp.Handler())

		r.Route("/admin", func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Use(middleware.APIRateLimit(cfg.AdminAPIRequestsPerMin, time.Minute))
			r.Mount("/", adminHandler.Routes())
		})
	})

	cleanupJob := jobs.NewCleanupJob(
		chatService, chatHandler, adminService, cfg.SessionIdleTimeout(), config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}
	server.RegisterOnShutdown(chatServer.Shutdown)

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stopRelay()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
