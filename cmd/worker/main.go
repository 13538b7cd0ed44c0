package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolattend/internal/config"
	"schoolattend/internal/directory"
	"schoolattend/internal/notify"
	"schoolattend/internal/queue"
	"schoolattend/internal/store"
	"schoolattend/internal/whatsapp"
)

// Worker drains pending guardian notifications. It wakes on queue
// signals from the api and on a periodic ticker, so delivery still
// happens if a signal is lost. Each drain pass delivers sequentially
// with the configured delay between sends.
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
		q = queue.NewRedisQueue(redisClient.Client, "schoolattend:notify")
	}

	dir := directory.NewRepository(db.Client)
	notifyRepo := notify.NewRepository(db.Client)
	transport := whatsapp.New(cfg.WhatsAppURL, cfg.WhatsAppToken, cfg.WhatsAppSkip, cfg.SendTimeout)
	dispatcher := notify.NewDispatcher(notifyRepo, dir, transport, cfg.SendDelay)

	if !cfg.WhatsAppSkip {
		if err := transport.Health(ctx); err != nil {
			log.Printf("WARNING: WhatsApp gateway not available: %v", err)
			log.Println("Worker will keep retrying as notifications arrive")
		} else {
			log.Println("WhatsApp gateway connected")
		}
	}

	signals, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()

	log.Println("worker started, waiting for notifications...")
	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped")
			return
		case sig, ok := <-signals:
			if !ok {
				log.Println("worker stopped")
				return
			}
			if sig.Kind != "notify" {
				continue
			}
			drain(ctx, dispatcher)
		case <-ticker.C:
			drain(ctx, dispatcher)
		}
	}
}

func drain(ctx context.Context, dispatcher *notify.Dispatcher) {
	processed, err := dispatcher.Drain(ctx)
	if err != nil {
		log.Printf("drain failed after %d deliveries: %v", processed, err)
		return
	}
	if processed > 0 {
		log.Printf("drained %d notifications", processed)
	}
}
