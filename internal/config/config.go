// Package config reads server settings from the environment, with a
// .env file honored for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// DatabaseURL enables the postgres room archive when set; empty
	// means in-memory snapshots only.
	DatabaseURL string

	// Dev switches logging to the human-readable development encoder.
	Dev bool
}

// Load reads the environment. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{Addr: ":8080"}
	if v, ok := os.LookupEnv("NEXUS_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("NEXUS_ENV"); ok && v == "development" {
		cfg.Dev = true
	}
	return cfg
}
