package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/playward/crashpoint/internal/lobby"
)

// Config is the yaml game configuration. Round timings and multiplier
// limits live here; addresses and secrets come from the environment.
type Config struct {
	Game struct {
		MinParticipants     int     `yaml:"min_participants"`
		StartDelaySec       int     `yaml:"start_delay_sec"`
		ResetDelaySec       int     `yaml:"reset_delay_sec"`
		RetryBackoffSec     int     `yaml:"retry_backoff_sec"`
		SignatureTimeoutSec int     `yaml:"signature_timeout_sec"`
		MinMultiplier       float64 `yaml:"min_multiplier"`
		MaxMultiplier       float64 `yaml:"max_multiplier"`
		MultiplierRate      float64 `yaml:"multiplier_rate"`
		ClientSeed          string  `yaml:"client_seed"`
	} `yaml:"game"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// lobbyConfig maps the yaml game section onto the coordinator config,
// falling back to defaults for unset fields.
func (c *Config) lobbyConfig() lobby.Config {
	cfg := lobby.DefaultConfig()
	g := c.Game
	if g.MinParticipants > 0 {
		cfg.MinParticipants = g.MinParticipants
	}
	if g.StartDelaySec > 0 {
		cfg.StartDelay = time.Duration(g.StartDelaySec) * time.Second
	}
	if g.ResetDelaySec > 0 {
		cfg.ResetDelay = time.Duration(g.ResetDelaySec) * time.Second
	}
	if g.RetryBackoffSec > 0 {
		cfg.RetryBackoff = time.Duration(g.RetryBackoffSec) * time.Second
	}
	if g.SignatureTimeoutSec > 0 {
		cfg.SignatureTimeout = time.Duration(g.SignatureTimeoutSec) * time.Second
	}
	if g.MinMultiplier > 0 {
		cfg.MinMultiplier = g.MinMultiplier
	}
	if g.MaxMultiplier > 0 {
		cfg.MaxMultiplier = g.MaxMultiplier
	}
	if g.MultiplierRate > 0 {
		cfg.MultiplierRate = g.MultiplierRate
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
