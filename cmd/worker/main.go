package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes audit events and writes the structured attendance audit log.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
	}

	events, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for events")
	for evt := range events {
		switch evt.Type {
		case queue.TypeMarked:
			logger.Info("attendance marked",
				zap.String("session_id", evt.SessionID),
				zap.Int64("student_id", evt.StudentID),
				zap.Time("at", evt.At),
			)
		case queue.TypeSessionEnded:
			logger.Info("session ended",
				zap.String("session_id", evt.SessionID),
				zap.Int64("class_id", evt.ClassID),
				zap.Int64("teacher_id", evt.ActorID),
				zap.Time("at", evt.At),
			)
		default:
			logger.Warn("unknown audit event", zap.String("type", evt.Type))
		}
	}

	logger.Info("worker stopped")
}
