// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server configures the rendezvous server.
type Server struct {
	Addr            string        `env:"NAVALSIM_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"NAVALSIM_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"NAVALSIM_LOG_LEVEL" envDefault:"info"`
	Development     bool          `env:"NAVALSIM_DEV"`
}

// Participant configures a terminal participant.
type Participant struct {
	SignalURL        string        `env:"NAVALSIM_SIGNAL_URL" envDefault:"ws://localhost:8080/ws"`
	ICEServers       []string      `env:"NAVALSIM_ICE_SERVERS" envSeparator:","`
	SignalingTimeout time.Duration `env:"NAVALSIM_SIGNALING_TIMEOUT" envDefault:"10s"`
	Name             string        `env:"NAVALSIM_NAME"`
	LogLevel         string        `env:"NAVALSIM_LOG_LEVEL" envDefault:"warn"`
	Development      bool          `env:"NAVALSIM_DEV"`
}

// LoadDotEnv reads files (default ".env") into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadServer() (Server, error) {
	var cfg Server
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	return cfg, ParseEnv(&cfg)
}

func LoadParticipant() (Participant, error) {
	var cfg Participant
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	return cfg, ParseEnv(&cfg)
}
