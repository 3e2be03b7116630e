package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port              string `yaml:"port"`
	SinglePlayer      bool   `yaml:"single_player"`
	RedisURL          string `yaml:"redis_url"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	LogLevel          string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Port:              "8080",
		NATSSubjectPrefix: "clickrace.events",
		LogLevel:          "info",
	}
}

// loadConfig layers defaults, the YAML file named by WB_CONFIG and the
// environment, in that order. A .env file is loaded into the environment
// first if present.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := defaultConfig()
	if path := os.Getenv("WB_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// Presence alone turns single player mode on.
	if _, ok := os.LookupEnv("WB_SINGLE_PLAYER"); ok {
		c.SinglePlayer = true
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
