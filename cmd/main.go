package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"supportchat/backend/internal/api/handler"
	"supportchat/backend/internal/auth"
	"supportchat/backend/internal/blob"
	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/config"
	"supportchat/backend/internal/presence"
	"supportchat/backend/internal/ratelimit"
	"supportchat/backend/internal/rating"
	"supportchat/backend/internal/router"
	"supportchat/backend/internal/session"
	"supportchat/backend/internal/storage"
)

func setupRateLimiter(ctx context.Context, addr string) *ratelimit.Limiter {
	if addr == "" {
		log.Println("INFO: REDIS_ADDR not set, message rate limiting disabled")
		return nil
	}
	client, err := ratelimit.Connect(ctx, addr)
	if err != nil {
		log.Printf("WARNING: Failed to connect Redis at %s, rate limiting disabled: %v", addr, err)
		return nil
	}
	log.Printf("INFO: Redis connected at %s", addr)
	return ratelimit.NewLimiter(client)
}

func setupBlobStore(ctx context.Context, cfg config.MinIOConfig) blob.Uploader {
	if cfg.Endpoint == "" {
		log.Println("INFO: MINIO_ENDPOINT not set, file uploads disabled")
		return nil
	}
	s, err := blob.NewStore(cfg)
	if err != nil {
		log.Printf("WARNING: MinIO disabled: %v", err)
		return nil
	}
	if err := s.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: MinIO bucket unavailable, file uploads disabled: %v", err)
		return nil
	}
	return s
}

func main() {
	log.Println("Starting support chat broker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("INFO: config %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Record store
	backend, err := storage.OpenBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	store, err := storage.NewStorageService(ctx, backend)
	if err != nil {
		log.Fatalf("Failed to load store: %v", err)
	}

	// No connection survives a restart.
	p := presence.NewRegistry(store.Users)
	if err := p.Reset(ctx); err != nil {
		log.Fatalf("Failed to reset presence: %v", err)
	}

	// 2. Services
	sessions := session.NewManager(store, p)
	if cfg.Owner.Username != "" {
		if _, err := sessions.SeedOwner(ctx, cfg.Owner.Username, cfg.Owner.Password); err != nil {
			log.Fatalf("Failed to seed owner account: %v", err)
		}
	}
	r := router.NewRouter(store, p)
	hub := chathub.NewManagerService(
		sessions,
		r,
		rating.NewAggregator(store, p),
		p,
		auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		setupRateLimiter(ctx, cfg.RedisAddr),
	)

	// 3. Background goroutines
	go hub.Run(ctx)
	go r.RunSweeper(ctx, cfg.ChatIdleTimeout, cfg.SweepInterval)

	// 4. HTTP
	engine := gin.Default()
	handler.NewHandler(hub, setupBlobStore(ctx, cfg.MinIO)).Register(engine)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        engine,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Printf("INFO: listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("INFO: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP shutdown: %v", err)
	}
}
