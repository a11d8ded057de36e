package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ampara.app/soporte/common/id"
	"ampara.app/soporte/common/logger"
	"ampara.app/soporte/core/config"
	"ampara.app/soporte/core/db"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeNotifier)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "notifier starting",
		"env", cfg.Env,
		"consumer_group", cfg.Notify.Group,
		"consumer_name", cfg.Notify.Consumer)

	// Different node ID than the server so snowflakes never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Notify.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Notify.Stream)

	consumer, err := notify.NewRedisConsumer(redisClient, notify.ConsumerConfig{
		Stream:       cfg.Notify.Stream,
		Group:        cfg.Notify.Group,
		Consumer:     cfg.Notify.Consumer,
		DLQStream:    cfg.Notify.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	agentStore := store.NewAgentStore(database.Pool())
	deliverer := notify.NewDeliverer(cfg.Notify, agentStore)

	worker := notify.NewWorker(consumer, deliverer)

	reclaimer := notify.NewReclaimer(redisClient, notify.ReclaimerConfig{
		Stream:    cfg.Notify.Stream,
		Group:     cfg.Notify.Group,
		Consumer:  cfg.Notify.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, worker.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- worker.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "notifier initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down notifier...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	worker.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "notifier error during shutdown", "error", err)
		}
	}

	slog.InfoContext(ctx, "notifier shutdown complete")
}

const banner = `
███╗   ██╗ ██████╗ ████████╗██╗███████╗██╗███████╗██████╗
████╗  ██║██╔═══██╗╚══██╔══╝██║██╔════╝██║██╔════╝██╔══██╗
██╔██╗ ██║██║   ██║   ██║   ██║█████╗  ██║█████╗  ██████╔╝
██║╚██╗██║██║   ██║   ██║   ██║██╔══╝  ██║██╔══╝  ██╔══██╗
██║ ╚████║╚██████╔╝   ██║   ██║██║     ██║███████╗██║  ██║
╚═╝  ╚═══╝ ╚═════╝    ╚═╝   ╚═╝╚═╝     ╚═╝╚══════╝╚═╝  ╚═╝
`
