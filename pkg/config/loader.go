package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by config structs that carry cross-field rules
// env tags cannot express.
type Validator interface {
	Validate() error
}

// Load parses environment variables into cfg using its `env` tags and then,
// if cfg implements Validator, runs its Validate method.
//
//	type Config struct {
//	    Port     int           `env:"HTTP_PORT" envDefault:"8080"`
//	    TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"3600s"`
//	}
func Load(cfg any) error {
	return LoadWithEnv(cfg, nil)
}

// LoadWithEnv is Load with an explicit variable set instead of the process
// environment. A nil map means the process environment.
func LoadWithEnv(cfg any, vars map[string]string) error {
	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}
	return nil
}
