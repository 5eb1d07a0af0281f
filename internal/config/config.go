package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	Venue     VenueConfig
	Session   SessionConfig
	SMTP      SMTPConfig
	Scheduler SchedulerConfig
}

type VenueConfig struct {
	BaseURL string `envconfig:"VENUE_BASE_URL" required:"true"`
	VenueNo string `envconfig:"VENUE_NO" default:"02"`
}

// SessionConfig keys are base64; see the `keys` command to generate them.
type SessionConfig struct {
	HashKey  string `envconfig:"SESSION_HASH_KEY" required:"true"`
	BlockKey string `envconfig:"SESSION_BLOCK_KEY" required:"true"`
	// CRED_ENC_KEY must decode to 32 bytes (AES-256-GCM).
	CredEncKey string `envconfig:"CRED_ENC_KEY" required:"true"`
}

type SMTPConfig struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"587"`
	UseTLS   bool   `envconfig:"SMTP_USE_TLS" default:"true"`
	From     string `envconfig:"SMTP_FROM"`
	Password string `envconfig:"SMTP_PASSWORD"`
}

type SchedulerConfig struct {
	Workers int `envconfig:"SCHED_WORKERS" default:"4"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Keys decodes and validates the session/credential key material.
func (s SessionConfig) Keys() (hash, block, credEnc []byte, err error) {
	if hash, err = decodeB64("SESSION_HASH_KEY", s.HashKey); err != nil {
		return nil, nil, nil, err
	}
	if block, err = decodeB64("SESSION_BLOCK_KEY", s.BlockKey); err != nil {
		return nil, nil, nil, err
	}
	if credEnc, err = decodeB64("CRED_ENC_KEY", s.CredEncKey); err != nil {
		return nil, nil, nil, err
	}
	if len(credEnc) != 32 {
		return nil, nil, nil, fmt.Errorf("CRED_ENC_KEY must decode to 32 bytes (got %d)", len(credEnc))
	}
	return hash, block, credEnc, nil
}

func decodeB64(name, v string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", name, err)
	}
	return b, nil
}
