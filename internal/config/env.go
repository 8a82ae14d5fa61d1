package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds process settings read from the environment. Command-line flags
// take precedence over these values.
type Env struct {
	TripsDir   string `env:"CARHACK_TRIPS_DIR" envDefault:"trips"`
	ConfigPath string `env:"CARHACK_CONFIG" envDefault:"config/carhack.json"`
	DBPath     string `env:"CARHACK_DB" envDefault:"carhack.db"`
	SerialPort string `env:"CARHACK_SERIAL_PORT"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
