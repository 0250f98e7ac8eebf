// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrNilPointer is returned when Load receives a nil destination.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrParse is returned when environment variables cannot be parsed into
	// the destination struct.
	ErrParse = errors.New("failed to parse environment into config")
)

var dotenvOnce sync.Once

// Load parses environment variables into the provided struct based on its
// `env` field tags. The default .env file is loaded once per process; a
// missing file is not an error.
//
// Example:
//
//	type RetryConfig struct {
//		MaxAttempts int `env:"RETRY_MAX_ATTEMPTS" envDefault:"10"`
//	}
//
//	var cfg RetryConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParse, err)
	}
	return nil
}

// LoadPrefixed works like Load but prepends prefix to every env tag. Used
// for per-provider settings, e.g. prefix "CAREEM_" turns WEBHOOK_SECRET
// into CAREEM_WEBHOOK_SECRET.
func LoadPrefixed[T any](v *T, prefix string) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.ParseWithOptions(v, env.Options{Prefix: prefix}); err != nil {
		return errors.Join(ErrParse, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Used for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
