package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/extractor"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes recorded attendance events and audits them: it
// confirms the row exists and keeps the face service warm so marking
// requests do not pay the cold-start cost.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	repo := attendance.NewRepository(db.Client)
	faces := extractor.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout)

	if !cfg.FaceSkip {
		if err := faces.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
		} else {
			log.Println("face service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAttendance {
			continue
		}

		id := string(msg.Body)
		evt, err := repo.Get(ctx, id)
		if err != nil {
			log.Printf("fetch event %s failed: %v", id, err)
			continue
		}
		log.Printf("audited event %s: user %s course %s at %s",
			evt.ID, evt.UserID, evt.CourseID, evt.RecordedAt.Format("15:04:05"))
	}

	log.Println("worker stopped")
}
