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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/api"
	"github.com/abdessamed5/marktist-team-chat/internal/bus"
	"github.com/abdessamed5/marktist-team-chat/internal/config"
	"github.com/abdessamed5/marktist-team-chat/internal/db"
	"github.com/abdessamed5/marktist-team-chat/internal/middleware"
	"github.com/abdessamed5/marktist-team-chat/internal/migrate"
	"github.com/abdessamed5/marktist-team-chat/internal/observ"
	"github.com/abdessamed5/marktist-team-chat/internal/repository/postgres"
	"github.com/abdessamed5/marktist-team-chat/internal/room"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no parent deadline — Background() and take as long as
	// connecting needs. Requests get their own contexts later.
	ctx := context.Background()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	roomBus, err := bus.NewRedisBus(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer roomBus.Close()

	pool := database.Pool()
	profileRepo := postgres.NewProfileStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	gate := room.NewGate(profileRepo, logger)

	authHandler := api.NewAuthHandler(profileRepo, cfg.JWTSecret, logger)
	userHandler := api.NewUserHandler(profileRepo, logger)
	adminHandler := api.NewAdminHandler(profileRepo, gate, logger)
	roomHandler := api.NewRoomHandler(profileRepo, messageRepo, roomBus, cfg, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Health check is public — load balancers hit it without a token.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	v1.GET("/users/me", userHandler.GetMe)
	v1.GET("/admin/users", adminHandler.ListUsers)
	v1.POST("/admin/approve", adminHandler.Approve)
	v1.GET("/room/ws", roomHandler.Serve)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting marktist-team-chat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("room_id", cfg.RoomID),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
