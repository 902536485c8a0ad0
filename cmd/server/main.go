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

	"posmbe/backend/internal/cache"
	"posmbe/backend/internal/config"
	"posmbe/backend/internal/httpapi"
	"posmbe/backend/internal/service"
	"posmbe/backend/internal/store"
	"posmbe/backend/internal/store/memory"
	pgstore "posmbe/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("[server] invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[server] postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.DatabaseAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Fatalf("[server] schema migration failed: %v", err)
			}
			log.Println("[server] schema ensured")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("[server] repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("[server] repository: in-memory")
	}

	receipts := cache.SaleReceiptCache(cache.NoopSaleReceiptCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSaleReceiptCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("[server] redis unavailable (%v), sale replays will not be deduplicated", err)
		} else {
			receipts = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("[server] idempotency cache: redis")
		}
	} else {
		log.Println("[server] idempotency cache: noop")
	}

	svc := service.New(repo, receipts, cfg.IdempotencyTTL)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AdminTokenTTL, cfg.ManagerTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		LoginBurst:         cfg.LoginBurst,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[server] POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("[server] close error: %v", err)
		}
	}

	log.Println("[server] stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must list at least one origin")
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS must not contain a wildcard")
		}
	}
	return nil
}
