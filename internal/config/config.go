// Package config loads service configuration from an optional YAML file with
// environment variable overrides. Environment always wins so deployments can
// tweak a single knob without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Timing   TimingConfig   `yaml:"timing"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// TimingConfig holds the session timers in seconds, matching how league
// commissioners think about them.
type TimingConfig struct {
	OfferSeconds     int `yaml:"offer_seconds"`
	AuctionSeconds   int `yaml:"auction_seconds"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "paddle",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		Timing: TimingConfig{
			OfferSeconds:     60,
			AuctionSeconds:   30,
			HeartbeatSeconds: 15,
		},
	}
}

// Load reads the YAML file at path if it exists, then applies environment
// overrides. A missing file is not an error; defaults carry the day.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Timing.OfferSeconds = getEnvAsInt("OFFER_SECONDS", cfg.Timing.OfferSeconds)
	cfg.Timing.AuctionSeconds = getEnvAsInt("AUCTION_SECONDS", cfg.Timing.AuctionSeconds)
	cfg.Timing.HeartbeatSeconds = getEnvAsInt("HEARTBEAT_SECONDS", cfg.Timing.HeartbeatSeconds)

	return cfg, nil
}

func (t TimingConfig) OfferTime() time.Duration {
	return time.Duration(t.OfferSeconds) * time.Second
}

func (t TimingConfig) AuctionTime() time.Duration {
	return time.Duration(t.AuctionSeconds) * time.Second
}

func (t TimingConfig) HeartbeatWindow() time.Duration {
	return time.Duration(t.HeartbeatSeconds) * time.Second
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
