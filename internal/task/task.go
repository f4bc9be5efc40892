// Package task builds the serialized request payloads the front-ends hand
// to the protocol core. The field surface mirrors the broker worker task
// schema; the core itself treats the result as an opaque byte sequence.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxTaskBytes bounds one serialized task request. The transport relies on
// payloads staying small enough to send in a single operation.
const MaxTaskBytes = 16 * 1024

const (
	// HelperCLI asks the worker to post-process results for terminal output.
	HelperCLI = "vpoller.helpers.cclient"
	// HelperAgent asks the worker to shape results for host-agent items.
	HelperAgent = "vpoller.helpers.czabbix"
)

var (
	ErrMethodRequired   = errors.New("task: method required")
	ErrHostnameRequired = errors.New("task: hostname required")
	ErrTaskTooLarge     = errors.New("task: serialized request too large")
)

// Request is one task addressed to the worker pool behind the broker.
type Request struct {
	Method       string   `json:"method"`
	Hostname     string   `json:"hostname"`
	Name         string   `json:"name"`
	Properties   []string `json:"properties"`
	Key          string   `json:"key"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	CounterID    string   `json:"counter-id"`
	Instance     string   `json:"instance"`
	PerfInterval string   `json:"perf-interval"`
	MaxSample    string   `json:"max-sample"`
	Helper       string   `json:"helper"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return ErrMethodRequired
	}
	if strings.TrimSpace(r.Hostname) == "" {
		return ErrHostnameRequired
	}
	return nil
}

// Marshal serializes the request and enforces the size bound. The returned
// bytes are immutable as far as the protocol core is concerned.
func (r Request) Marshal() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Properties == nil {
		r.Properties = []string{}
	}
	out, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("task: marshal request: %w", err)
	}
	if len(out) > MaxTaskBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTaskTooLarge, len(out))
	}
	return out, nil
}
