// Package agent hosts broker task polling inside a long-lived monitoring
// agent process. The module owns its transport context explicitly: Init
// creates it once at process start, Uninit releases it on shutdown, and
// every key evaluation runs the shared retry protocol through it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pollerkit/pollctl/internal/client"
	"github.com/pollerkit/pollctl/internal/task"
	"github.com/pollerkit/pollctl/internal/transport"
)

const (
	// KeyPoll evaluates poll[method, hostname, name, properties, <key>,
	// <username>, <password>, <counter-id>, <instance>, <perf-interval>].
	KeyPoll = "poll"
	// KeyEcho returns its first parameter unchanged.
	KeyEcho = "echo"

	minPollParams = 4
	maxPollParams = 10
)

var (
	ErrNotInitialized = errors.New("agent: module not initialized")
	ErrUnknownKey     = errors.New("agent: unknown key")
	ErrBadParams      = errors.New("agent: invalid number of parameters")
	ErrNoResponse     = errors.New("agent: did not receive response")
)

// Module is the host-agent integration surface.
type Module struct {
	cfg  Config
	tctx *transport.Context
	req  *client.Requester
}

func NewModule() *Module {
	return &Module{}
}

// Init loads the module configuration and creates the owned transport
// context. It must be called once before Eval; calling Eval without Init
// fails rather than reaching for process-global state.
func (m *Module) Init(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	tctx := transport.NewContext(transport.DefaultOptions())
	req, err := client.NewRequester(tctx, client.Config{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
	})
	if err != nil {
		return err
	}

	m.cfg = cfg
	m.tctx = tctx
	m.req = req

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Dur("timeout", cfg.Timeout).
		Int("retries", cfg.Retries).
		Msg("agent module initialized")
	return nil
}

// Uninit releases the transport context. The module can be re-initialized
// afterwards.
func (m *Module) Uninit() error {
	if m.tctx == nil {
		return nil
	}
	err := m.tctx.Close()
	m.tctx = nil
	m.req = nil
	return err
}

// Eval processes one agent item key.
func (m *Module) Eval(ctx context.Context, key string, params []string) (string, error) {
	switch strings.TrimSpace(key) {
	case KeyPoll:
		return m.evalPoll(ctx, params)
	case KeyEcho:
		return evalEcho(params)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

func (m *Module) evalPoll(ctx context.Context, params []string) (string, error) {
	if m.req == nil {
		return "", ErrNotInitialized
	}
	if len(params) < minPollParams || len(params) > maxPollParams {
		return "", fmt.Errorf("%w: got %d, want %d..%d",
			ErrBadParams, len(params), minPollParams, maxPollParams)
	}

	padded := make([]string, maxPollParams)
	copy(padded, params)
	req := task.Request{
		Method:       padded[0],
		Hostname:     padded[1],
		Name:         padded[2],
		Properties:   []string{padded[3]},
		Key:          padded[4],
		Username:     padded[5],
		Password:     padded[6],
		CounterID:    padded[7],
		Instance:     padded[8],
		PerfInterval: padded[9],
		MaxSample:    "1",
		Helper:       task.HelperAgent,
	}

	var reply string
	err := client.Run(ctx, m.req, req.Marshal, func(raw []byte) error {
		reply = string(raw)
		return nil
	})
	if errors.Is(err, client.ErrExhausted) {
		return "", ErrNoResponse
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func evalEcho(params []string) (string, error) {
	if len(params) < 1 {
		return "", fmt.Errorf("%w: echo needs one parameter", ErrBadParams)
	}
	return params[0], nil
}
