package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/playward/crashpoint/internal/channel"
	"github.com/playward/crashpoint/internal/events"
	"github.com/playward/crashpoint/internal/fairness"
	"github.com/playward/crashpoint/internal/gateway"
	"github.com/playward/crashpoint/internal/lobby"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("GAME_CONFIG", "config.yaml")
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load game config")
	}
	lobbyCfg := config.lobbyConfig()

	channelURL := getEnv("CHANNEL_SERVICE_URL", "http://localhost:9090")
	natsURL := getEnv("NATS_URL", "")
	clientSeed := config.Game.ClientSeed
	if clientSeed == "" {
		clientSeed = getEnv("CLIENT_SEED", "crashpoint-public-seed")
	}

	log.Info().
		Str("channel_service_url", channelURL).
		Str("nats_url", natsURL).
		Int("min_participants", lobbyCfg.MinParticipants).
		Float64("max_multiplier", lobbyCfg.MaxMultiplier).
		Msg("starting crashpoint")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel service client
	collab := channel.NewClient(channelURL)
	if apiKey := getEnv("CHANNEL_API_KEY", ""); apiKey != "" {
		collab.SetHeader("Authorization", "Bearer "+apiKey)
	}

	// Event fabric: websocket feed always, NATS when configured
	hub := gateway.NewHub(gateway.DefaultConnectionConfig())
	go hub.Run(ctx)

	publishers := events.Fanout{hub}
	if natsURL != "" {
		natsPublisher, err := events.NewNATSPublisher(ctx, natsURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to setup NATS publisher")
		}
		defer natsPublisher.Close()
		publishers = append(publishers, natsPublisher)
	}

	source := fairness.NewHMACSource(clientSeed, lobbyCfg.MaxMultiplier)
	coordinator, err := lobby.NewCoordinator(lobbyCfg, clockwork.NewRealClock(), collab, source, publishers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coordinator")
	}

	handlers := gateway.NewHandlers(coordinator, hub, clientSeed, lobbyCfg.MaxMultiplier)
	server := setupServer(handlers)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("game server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("game server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	shutdownTimeout := time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
