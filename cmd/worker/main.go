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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presensi/internal/attendance"
	"presensi/internal/config"
	"presensi/internal/guardianbot"
	"presensi/internal/queue"
	"presensi/internal/scheduler"
	"presensi/internal/store"
	"presensi/internal/worker"
)

// Worker delivers guardian notifications, runs the absentee sweep and the
// guardian sign-up bot.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		log.Println("WARNING: memory queue in a standalone worker only sees sweep jobs")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	repo := attendance.NewRepository(db.Client)
	dispatcher := worker.NewDispatcher(cfg, prometheus.DefaultRegisterer)
	svc := attendance.NewService(repo, q, dispatcher, cfg.Location())

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	sched := scheduler.New(svc, cfg.Location())
	if err := sched.AddSweep(cfg.AbsentSweepCron); err != nil {
		log.Fatalf("absent sweep schedule: %v", err)
	}
	sched.Start(ctx)
	log.Printf("absent sweep scheduled (%s), next run %s", cfg.AbsentSweepCron, sched.Next().Format(time.RFC3339))

	if cfg.GuardianBot {
		bot, err := guardianbot.New(cfg.TelegramBotToken, cfg.TelegramAPIBase, svc)
		if err != nil {
			log.Printf("WARNING: guardian bot not started: %v", err)
		} else if bot == nil {
			log.Println("guardian bot enabled but TELEGRAM_BOT_TOKEN not set")
		} else {
			go bot.Start(ctx)
		}
	}

	if err := worker.Run(ctx, q, svc); err != nil {
		log.Fatalf("%v", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
