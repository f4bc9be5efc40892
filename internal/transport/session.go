package transport

import (
	"bufio"
	"errors"
	"net"
	"time"

	"github.com/pollerkit/pollctl/internal/protocol/frame"
)

var (
	ErrSessionClosed = errors.New("transport: session closed")
	ErrNotReadable   = errors.New("transport: no reply available")
)

// Session is one connection attempt against the broker endpoint. It follows
// a strict request/reply discipline; callers that send without receiving
// must discard the session rather than send again.
type Session struct {
	tctx   *Context
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// Addr returns the resolved broker address this session was opened against.
func (s *Session) Addr() string {
	return s.addr
}

// Send transmits one complete task payload. Frame-level encode failures
// (oversized payload) are caller bugs and surface as errors; transport write
// failures mark the session dead and are absorbed, leaving the reply poll to
// run out its window the same way an unreachable broker would.
func (s *Session) Send(payload []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	if uint64(len(payload)) > uint64(s.tctx.opts.Limits.MaxPayloadBytes) {
		return frame.ErrPayloadTooLarge
	}
	if s.conn == nil {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.tctx.opts.WriteTimeout))
	if err := frame.WriteFrame(s.conn, payload, s.tctx.opts.Limits); err != nil {
		s.markDead()
	}
	return nil
}

// PollReadable blocks up to timeout waiting for a reply frame to become
// available. This is the single blocking point of the protocol.
func (s *Session) PollReadable(timeout time.Duration) (bool, error) {
	if s.closed {
		return false, ErrSessionClosed
	}
	deadline := time.Now().Add(timeout)
	if s.conn == nil {
		sleepUntil(deadline)
		return false, nil
	}

	_ = s.conn.SetReadDeadline(deadline)
	_, err := s.reader.Peek(1)
	if err == nil {
		return true, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false, nil
	}
	// Reset or remote close: no reply is coming on this session. Burn the
	// remainder of the window so a broken peer costs the same as a silent
	// one, then report not readable.
	s.markDead()
	sleepUntil(deadline)
	return false, nil
}

// Receive reads exactly one reply message. It must only be called after
// PollReadable reported true. The returned bytes are an owned copy whose
// lifetime is independent of the session.
func (s *Session) Receive() ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.conn == nil {
		return nil, ErrNotReadable
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.tctx.opts.ReadTimeout))
	return frame.ReadFrame(s.reader, s.tctx.opts.Limits)
}

// Close releases the session immediately. Queued-but-unsent data is dropped
// (zero linger). Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.tctx.ended.Add(1)
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}

func (s *Session) markDead() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
}

func sleepUntil(deadline time.Time) {
	if d := time.Until(deadline); d > 0 {
		time.Sleep(d)
	}
}
