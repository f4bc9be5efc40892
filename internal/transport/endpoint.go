package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	// DefaultPort is the conventional broker request/reply port.
	DefaultPort = "10123"

	endpointScheme = "tcp://"
)

var (
	ErrEndpointRequired = errors.New("transport: endpoint required")
	ErrEndpointScheme   = errors.New("transport: endpoint scheme must be tcp")
)

// ParseEndpoint resolves a "tcp://host[:port]" endpoint to a dialable
// host:port address. A missing port defaults to DefaultPort.
func ParseEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEndpointRequired
	}
	if !strings.HasPrefix(raw, endpointScheme) {
		if strings.Contains(raw, "://") {
			return "", fmt.Errorf("%w: %q", ErrEndpointScheme, raw)
		}
		return "", fmt.Errorf("%w: missing tcp:// prefix in %q", ErrEndpointScheme, raw)
	}

	hostport := strings.TrimPrefix(raw, endpointScheme)
	if hostport == "" {
		return "", ErrEndpointRequired
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port component: fall back to the default broker port.
		host = strings.Trim(hostport, "[]")
		port = DefaultPort
	}
	if strings.TrimSpace(host) == "" {
		return "", ErrEndpointRequired
	}
	return net.JoinHostPort(host, port), nil
}
