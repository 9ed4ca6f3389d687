package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tasktree/api/internal/access"
	"tasktree/api/internal/app"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/backend/appwrite"
	"tasktree/api/internal/backend/memory"
	"tasktree/api/internal/backend/selfhosted"
	"tasktree/api/internal/config"
	"tasktree/api/internal/search"
	"tasktree/api/internal/session"
	"tasktree/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.CheckSessionSecret(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	// Missing backend settings are reported per request, not at startup.
	if err := cfg.Backend.Validate(); err != nil {
		log.Printf("WARNING: %v", err)
	}

	var docBackend backend.Backend
	switch cfg.Backend.Driver {
	case "selfhosted":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}

		objects, err := selfhosted.NewMinIOStore(cfg.Backend.Endpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		pg := store.NewPostgresStore(db)
		docBackend = selfhosted.New(cfg.Backend, pg, pg, objects, pg)
	case "memory":
		log.Printf("Using in-memory backend; data is lost on restart")
		docBackend = memory.New()
	default:
		docBackend = appwrite.New(cfg.Backend, &http.Client{Timeout: 30 * time.Second})
	}

	var sessions session.Store
	switch cfg.SessionDriver {
	case "redis":
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	case "memory":
		log.Printf("Using in-memory session storage")
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	default:
		sessions = session.NewCookieStore(cfg.SessionSecret, cfg.SessionTTL)
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		engine = meiliClient
	}

	resolver := access.NewResolver(cfg.Backend, sessions, docBackend, cfg.SessionCookieName)
	service := app.New(cfg, resolver, search.NewService(engine))

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tasktree API listening on %s (backend=%s, sessions=%s)", cfg.Addr, cfg.Backend.Driver, cfg.SessionDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
