package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full server configuration, sourced from the environment
// (optionally seeded from a .env file).
type Config struct {
	Addr            string
	DatabaseURL     string
	JWTSecret       string
	RoomIdleTimeout time.Duration
	SweepInterval   time.Duration
	SearchTimeout   time.Duration
}

// Load reads .env if present, then the environment. A missing .env file is
// not an error; a missing secret or database URL is.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getenv("DUET_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DUET_DATABASE_URL"),
		JWTSecret:       os.Getenv("DUET_JWT_SECRET"),
		RoomIdleTimeout: 10 * time.Minute,
		SweepInterval:   time.Minute,
		SearchTimeout:   10 * time.Second,
	}

	var err error
	if cfg.RoomIdleTimeout, err = getdur("DUET_ROOM_IDLE_TIMEOUT", cfg.RoomIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getdur("DUET_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.SearchTimeout, err = getdur("DUET_SEARCH_TIMEOUT", cfg.SearchTimeout); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("DUET_JWT_SECRET must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("DUET_DATABASE_URL must be set")
	}
	if c.RoomIdleTimeout <= 0 {
		return fmt.Errorf("DUET_ROOM_IDLE_TIMEOUT must be positive, got %s", c.RoomIdleTimeout)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getdur(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
