package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pollerkit/pollctl/internal/client"
)

const (
	// Host-agent item processing tolerates at most one retry pass by
	// default; the window is wider than the CLI's to match.
	DefaultTimeout = 10000 * time.Millisecond
	DefaultRetries = 1

	minTimeout = 1000 * time.Millisecond
	maxTimeout = 60000 * time.Millisecond
	maxRetries = 100
)

var (
	ErrTimeoutOutOfRange = errors.New("agent: timeout_ms must be within 1000..60000")
	ErrRetriesOutOfRange = errors.New("agent: retries must be within 1..100")
)

// Config is the agent module's runtime configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

func DefaultConfig() Config {
	return Config{
		Endpoint: client.DefaultEndpoint,
		Timeout:  DefaultTimeout,
		Retries:  DefaultRetries,
	}
}

// agent config.toml key mapping.
type fileConfig struct {
	Endpoint  string `toml:"endpoint"`
	TimeoutMS int64  `toml:"timeout_ms"`
	Retries   int    `toml:"retries"`
}

// LoadConfig reads the module configuration file with a default overlay. A
// missing file is not an error; the defaults apply unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load agent config: %w", err)
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("timeout_ms") {
		cfg.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return client.ErrEndpointRequired
	}
	if c.Timeout < minTimeout || c.Timeout > maxTimeout {
		return fmt.Errorf("%w: got %d", ErrTimeoutOutOfRange, c.Timeout.Milliseconds())
	}
	if c.Retries < 1 || c.Retries > maxRetries {
		return fmt.Errorf("%w: got %d", ErrRetriesOutOfRange, c.Retries)
	}
	return nil
}
