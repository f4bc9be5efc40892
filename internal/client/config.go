package client

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "tcp://localhost:10123"
	DefaultTimeout  = 3000 * time.Millisecond
	DefaultRetries  = 3
)

var (
	ErrEndpointRequired = errors.New("client: endpoint required")
	ErrTimeoutInvalid   = errors.New("client: per-attempt timeout must be positive")
	ErrRetriesInvalid   = errors.New("client: retries must be positive")
)

// Config defines one requester's endpoint and retry budget. Timeout gates
// each attempt; Retries bounds the number of attempts, so worst-case run
// latency is Retries * Timeout plus processing time.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Timeout:  DefaultTimeout,
		Retries:  DefaultRetries,
	}
}

func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrEndpointRequired
	}
	if c.Timeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.Retries <= 0 {
		return ErrRetriesInvalid
	}
	return nil
}
