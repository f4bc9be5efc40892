package brokertest

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pollerkit/pollctl/internal/protocol/frame"
)

// Handler inspects one received task payload and decides the broker's
// behavior: reply with the returned bytes when respond is true, or stay
// silent and hold the connection open when respond is false.
type Handler func(task []byte) (reply []byte, respond bool)

// Broker is an in-process request/reply endpoint for exercising clients
// against responsive, silent, and misbehaving peers.
type Broker struct {
	ln       net.Listener
	handler  Handler
	requests atomic.Uint64

	mu    sync.Mutex
	tasks [][]byte
	wg    sync.WaitGroup
}

// Serve starts a broker on a loopback port and shuts it down with the test.
func Serve(t *testing.T, handler Handler) *Broker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("brokertest listen: %v", err)
	}
	b := &Broker{ln: ln, handler: handler}
	b.wg.Add(1)
	go b.acceptLoop()
	t.Cleanup(b.Close)
	return b
}

// Echo replies to every task with its own payload.
func Echo(t *testing.T) *Broker {
	t.Helper()
	return Serve(t, func(task []byte) ([]byte, bool) {
		return task, true
	})
}

// Silent accepts tasks and never replies.
func Silent(t *testing.T) *Broker {
	t.Helper()
	return Serve(t, func([]byte) ([]byte, bool) {
		return nil, false
	})
}

// Endpoint returns the broker address in tcp:// endpoint form.
func (b *Broker) Endpoint() string {
	return "tcp://" + b.ln.Addr().String()
}

// Requests reports how many task payloads the broker has read so far.
func (b *Broker) Requests() uint64 {
	return b.requests.Load()
}

// Tasks returns copies of every task payload received, in arrival order.
func (b *Broker) Tasks() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.tasks))
	for i, task := range b.tasks {
		cp := make([]byte, len(task))
		copy(cp, task)
		out[i] = cp
	}
	return out
}

func (b *Broker) Close() {
	_ = b.ln.Close()
	b.wg.Wait()
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			return
		}
		b.wg.Add(1)
		go b.serveConn(conn)
	}
}

func (b *Broker) serveConn(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()
	for {
		task, err := frame.ReadFrame(conn, frame.DefaultLimits())
		if err != nil {
			return
		}
		b.requests.Add(1)
		b.mu.Lock()
		b.tasks = append(b.tasks, task)
		b.mu.Unlock()

		reply, respond := b.handler(task)
		if !respond {
			continue
		}
		if err := frame.WriteFrame(conn, reply, frame.DefaultLimits()); err != nil {
			return
		}
	}
}
