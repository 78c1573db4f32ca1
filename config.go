package proctrace

import (
	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"
)

const (
	// OutputEnv names the trace file that events are appended to. The file
	// must already exist; if the variable is unset nothing is written.
	OutputEnv = "UPTPL_OUTPUT"
	// LogEnv enables debug logging of failed captures and writes. It is
	// either "stderr" or the path of a log file.
	LogEnv = "UPTPL_LOG"
)

// Config is read from the environment of the host process.
type Config struct {
	Output string `env:"UPTPL_OUTPUT"`
	Log    string `env:"UPTPL_LOG"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{})
}

func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	err := env.ParseWithOptions(&cfg, opts)
	if err != nil {
		return Config{}, xerrors.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
