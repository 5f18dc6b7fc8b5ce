package apiclient

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig carries the client settings readable from the environment,
// prefixed LOOKBOOK_API_ (e.g. LOOKBOOK_API_BASE_URL).
type EnvConfig struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:3001"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	FallbackOrigin string        `envconfig:"FALLBACK_ORIGIN" default:"http://localhost:3001"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
}

const envPrefix = "LOOKBOOK_API"

// LoadEnvConfig reads EnvConfig from the environment.
func LoadEnvConfig() (*EnvConfig, error) {
	var ec EnvConfig
	if err := envconfig.Process(envPrefix, &ec); err != nil {
		return nil, fmt.Errorf("load client environment: %w", err)
	}
	return &ec, nil
}

// Options expands the environment settings into constructor options.
func (ec *EnvConfig) Options() []Option {
	opts := []Option{
		WithBaseURL(ec.BaseURL),
		WithTimeout(ec.Timeout),
		WithMaxRetries(ec.MaxRetries),
		WithFallbackOrigin(ec.FallbackOrigin),
	}
	if ec.Debug {
		opts = append(opts, WithDebug())
	}
	return opts
}

// NewFromEnv builds a client from the environment; extra options are applied
// after the environment-derived ones and may override them.
func NewFromEnv(extra ...Option) (*Client, error) {
	ec, err := LoadEnvConfig()
	if err != nil {
		return nil, err
	}
	c := New(append(ec.Options(), extra...)...)
	if err := c.ValidationError(); err != nil {
		return nil, err
	}
	return c, nil
}
