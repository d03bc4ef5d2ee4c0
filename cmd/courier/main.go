package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/victorivanov/courier/internal/api"
	"github.com/victorivanov/courier/internal/auth"
	"github.com/victorivanov/courier/internal/config"
	"github.com/victorivanov/courier/internal/database"
	"github.com/victorivanov/courier/internal/gateway"
	"github.com/victorivanov/courier/internal/profile"
	redisclient "github.com/victorivanov/courier/internal/redis"
	"github.com/victorivanov/courier/internal/service"
	"github.com/victorivanov/courier/internal/snowflake"
	"github.com/victorivanov/courier/internal/storage"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	blobStore, err := storage.NewMinIOClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket)
	if err != nil {
		log.Fatalf("minio: %v", err)
	}

	sf, err := snowflake.NewGenerator(1)
	if err != nil {
		log.Fatalf("snowflake: %v", err)
	}
	tokenSvc := auth.NewTokenService(cfg.JWTSecret)

	// --- Repositories ---

	conversations := database.NewConversationRepository(pool)
	messages := database.NewMessageRepository(pool)
	participants := database.NewParticipantRepository(pool)
	directory := database.NewDirectoryRepository(pool)

	// --- Gateway ---

	gwManager := gateway.NewManager(tokenSvc, conversations, participants)

	// --- Services ---

	profiles := profile.NewService(directory, rdb)
	conversationSvc := service.NewConversationService(conversations, profiles, sf, gwManager)
	messageSvc := service.NewMessageService(messages, conversations, participants, sf, gwManager)
	readStateSvc := service.NewReadStateService(participants, conversations, gwManager)
	uploadSvc := service.NewUploadService(sf, blobStore)

	deps := &api.Dependencies{
		Conversations: api.NewConversationHandler(conversationSvc),
		Messages:      api.NewMessageHandler(messageSvc),
		ReadStates:    api.NewReadStateHandler(readStateSvc),
		Uploads:       api.NewUploadHandler(uploadSvc),
		Gateway:       gwManager,
		TokenService:  tokenSvc,
		Redis:         rdb,
	}

	// --- Echo ---

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true
	e.Validator = api.NewRequestValidator()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.SetupRouter(e, deps)

	// --- Start ---

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("courier starting on %s", cfg.ServerAddr)
		if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("shutting down...")
	if err := e.Shutdown(context.Background()); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
