package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"presensi/internal/api"
	"presensi/internal/attendance"
	"presensi/internal/config"
	"presensi/internal/queue"
	"presensi/internal/store"
	"presensi/internal/worker"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	} else if err := db.Migrate(context.Background()); err != nil {
		log.Printf("warning: schema migration failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo := attendance.NewRepository(db.Client)
	var svc *attendance.Service
	if cfg.QueueBackend == "memory" {
		// no separate worker can see an in-process queue, so deliver here
		q := queue.NewInMemory(64)
		svc = attendance.NewService(repo, q, worker.NewDispatcher(cfg, prometheus.DefaultRegisterer), cfg.Location())
		go func() {
			if err := worker.Run(ctx, q, svc); err != nil {
				log.Printf("in-process worker: %v", err)
			}
		}()
	} else {
		q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		svc = attendance.NewService(repo, q, nil, cfg.Location())
	}

	srv := api.New(svc, repo, api.Options{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		AdminDeviceIDs:  cfg.AdminDeviceIDs,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health: map[string]func(context.Context) bool{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
	})

	// Graceful shutdown
	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
