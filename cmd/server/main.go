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

	"studytrack/internal/config"
	"studytrack/internal/database"
	"studytrack/internal/handlers"
	"studytrack/internal/logger"
	"studytrack/internal/middleware"
	"studytrack/internal/repository"
	"studytrack/internal/router"
	"studytrack/internal/services"
	"studytrack/internal/websocket"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		auth := middleware.NewJWTAuth(config.LoadJWTSecret())
		if err := runToken(auth, os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	log.Info("Starting study session server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── PostgreSQL ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("✗ PostgreSQL connection failed")
	}
	defer pool.Close()
	log.Info("✓ PostgreSQL connected")

	// ──── Redis ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("✗ Redis connection failed")
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.WithError(err).Fatal("✗ Database migration failed")
	}
	log.Info("✓ Database migrations applied")

	// ──── Repositories & Services ────
	sessionRepo := repository.NewStudySessionRepo(pool)
	milestoneRepo := repository.NewMilestoneRepo(pool)
	notifier := services.NewRedisNotifier(redisClients.Publisher)
	sessionService := services.NewStudySessionService(sessionRepo, milestoneRepo, notifier, cfg.SessionIdleAfter, log)

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	commandLimiter := middleware.NewCommandLimiter(30, time.Minute)
	defer commandLimiter.Close()

	// ──── WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, log)
	defer wsHub.Close()

	r := router.New(
		jwtAuth,
		commandLimiter,
		handlers.NewStudySessionHandler(sessionService),
		wsHub.HandleWebSocket,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("env", cfg.Env).Infof("✓ Ready on http://localhost:%s", cfg.Port)
	log.Infof("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Infof("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Server error")
	}
}
