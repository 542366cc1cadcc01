package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/skill-scanner/internal/app"
	"github.com/yourorg/skill-scanner/internal/config"
	"github.com/yourorg/skill-scanner/internal/worker"
)

func main() {
	app.LoadEnv()
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue, closeQueue, err := app.OpenQueue(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeQueue()

	sc, err := app.NewScanner(cfg, "", os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if !sc.Sink.CanSubmit() {
		log.Fatal("PYX_ADMIN_API_KEY is required")
	}
	if err := app.NewSink(cfg).Ping(ctx); err != nil {
		log.Printf("warning: %v", err)
	}

	if addr := cfg.HTTPAddr; addr != "" {
		go app.ServeHealth(ctx, addr, queue)
	}

	r := worker.NewRunner(queue, sc, worker.Options{
		Limit:      cfg.QueueLimit,
		StaleAfter: cfg.StaleTimeout,
		MaxIdle:    cfg.PollInterval,
		Model:      sc.Model,
	})
	log.Printf("worker starting with model=%s batch=%d stale-after=%s", sc.Model, cfg.QueueLimit, cfg.StaleTimeout)

	if err := r.RunForever(ctx); err != nil {
		log.Fatal(err)
	}
	log.Printf("worker stopped")
}
