package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/org/applock/internal/api"
	"github.com/org/applock/internal/app"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// A missing .env is fine.
	_ = godotenv.Load()

	cfgFile := config.Path()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfgFile).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := biometric.NewSimulator(cfg.Simulator.Capability())
	a, err := app.New(ctx, cfg, sim)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()
	log.Info().
		Str("driver", cfg.Storage.Driver).
		Str("namespace", cfg.Storage.Namespace).
		Bool("dev_mode", cfg.DevMode).
		Msg("vault unsealed, lock controller running")

	srv := api.NewServer(a, api.Config{
		ListenAddr: cfg.ListenAddr,
		DevMode:    cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-ctx.Done()

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
