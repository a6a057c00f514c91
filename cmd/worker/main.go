package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"clinquery/internal/activities"
	"clinquery/internal/cipher"
	"clinquery/internal/config"
	"clinquery/internal/embed"
	"clinquery/internal/logger"
	"clinquery/internal/metrics"
	"clinquery/internal/providers"
	"clinquery/internal/retrieval"
	"clinquery/internal/vectorstore"
	"clinquery/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Output: os.Stderr})

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal().Err(err).Msg("dial temporal")
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := vectorstore.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open vector store")
	}
	defer store.Close()
	ciph, err := cipher.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init cipher backend")
	}
	mgr, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init providers")
	}

	met := metrics.New(nil)
	embedder := embed.NewService(cfg, mgr)
	ingestor := retrieval.NewIngestor(cfg, embedder, ciph, store, log, met)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, ingestor))

	log.Info().
		Str("temporal", cfg.TemporalAddress).
		Str("queue", cfg.TemporalTaskQueue).
		Str("store_backend", cfg.StoreBackend).
		Str("embed_providers", cfg.EmbedProviders).
		Msg("clinquery worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal().Err(err).Msg("worker exited")
	}
}
