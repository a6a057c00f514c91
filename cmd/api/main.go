package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"clinquery/internal/api"
	"clinquery/internal/config"
	"clinquery/internal/logger"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Output: os.Stderr})

	h := api.NewServer(cfg, log)
	log.Info().
		Str("addr", cfg.APIAddr).
		Str("store_backend", cfg.StoreBackend).
		Str("key_backend", cfg.KeyBackend).
		Str("embed_providers", cfg.EmbedProviders).
		Msg("clinquery api listening")
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal().Err(err).Msg("api server exited")
	}
}
