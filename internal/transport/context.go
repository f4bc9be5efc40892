package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pollerkit/pollctl/internal/protocol/frame"
)

var (
	ErrContextClosed = errors.New("transport: context closed")
	ErrOpenSession   = errors.New("transport: cannot open session")
)

// Options configures a transport Context.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	Limits       frame.Limits
}

func DefaultOptions() Options {
	return Options{
		DialTimeout:  1 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		Limits:       frame.DefaultLimits(),
	}
}

func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = def.DialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.Limits.MaxPayloadBytes == 0 {
		o.Limits = def.Limits
	}
	return o
}

// Stats reports session lifecycle counts for one Context.
type Stats struct {
	Opened uint64
	Closed uint64
}

// Context owns all transport resources for its hosting process. It is
// constructed once, passed into each requester, and torn down on shutdown.
// Sessions must not outlive the Context that opened them.
type Context struct {
	opts   Options
	closed atomic.Bool
	opened atomic.Uint64
	ended  atomic.Uint64
}

func NewContext(opts Options) *Context {
	return &Context{opts: opts.WithDefaults()}
}

// Open allocates one session bound to endpoint. Allocation failures (closed
// context, unparseable endpoint, descriptor exhaustion) are returned as
// errors and abort the caller's run. Network-level dial failures do not fail
// Open: the session is created dead, so an unreachable broker degrades to
// ordinary timeout mechanics instead of a distinct error path.
func (c *Context) Open(endpoint string) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	s := &Session{tctx: c, addr: addr}
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		if isResourceExhaustion(err) {
			return nil, fmt.Errorf("%w: %v", ErrOpenSession, err)
		}
		// Connection refused, unreachable, dial timeout: the broker may
		// come back before the retry budget runs out. Leave the session
		// dead and let the poll window elapse.
		c.opened.Add(1)
		return s, nil
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Zero linger: Close must release the channel immediately without
		// draining queued data.
		_ = tcp.SetLinger(0)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	c.opened.Add(1)
	return s, nil
}

// Close tears the context down. Open fails afterwards; sessions already
// handed out remain closeable.
func (c *Context) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Context) Stats() Stats {
	return Stats{
		Opened: c.opened.Load(),
		Closed: c.ended.Load(),
	}
}

func isResourceExhaustion(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}
