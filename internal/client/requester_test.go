package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pollerkit/pollctl/internal/testutil/brokertest"
	"github.com/pollerkit/pollctl/internal/testutil/testlog"
	"github.com/pollerkit/pollctl/internal/transport"
)

func newTestRequester(t *testing.T, endpoint string, timeout time.Duration, retries int) (*Requester, *transport.Context) {
	t.Helper()
	tctx := transport.NewContext(transport.DefaultOptions())
	req, err := NewRequester(tctx, Config{Endpoint: endpoint, Timeout: timeout, Retries: retries})
	if err != nil {
		t.Fatalf("new requester: %v", err)
	}
	return req, tctx
}

func TestDoDeliversReplyOnFirstAttempt(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Echo(t)

	req, tctx := newTestRequester(t, broker.Endpoint(), 2*time.Second, 3)
	task := []byte("{\"method\":\"vm.get\"}")
	res := req.Do(context.Background(), task)

	if res.Outcome != OutcomeDelivered {
		t.Fatalf("outcome: got %v err=%v", res.Outcome, res.Err)
	}
	if !bytes.Equal(res.Reply, task) {
		t.Fatalf("reply mismatch: got %q", res.Reply)
	}
	if got := broker.Requests(); got != 1 {
		t.Fatalf("send attempts: got %d want 1", got)
	}
	if stats := tctx.Stats(); stats.Opened != 1 || stats.Closed != 1 {
		t.Fatalf("session counts: %+v", stats)
	}
}

func TestDoExhaustsAgainstSilentBroker(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Silent(t)

	const retries = 3
	req, tctx := newTestRequester(t, broker.Endpoint(), 50*time.Millisecond, retries)
	res := req.Do(context.Background(), []byte("task"))

	if res.Outcome != OutcomeExhausted {
		t.Fatalf("outcome: got %v err=%v", res.Outcome, res.Err)
	}
	if !errors.Is(res.Err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", res.Err)
	}
	if got := broker.Requests(); got != retries {
		t.Fatalf("send attempts: got %d want %d", got, retries)
	}
	stats := tctx.Stats()
	if stats.Opened != retries || stats.Closed != retries {
		t.Fatalf("each attempt must use a fresh session: %+v", stats)
	}
}

func TestDoRetriesThenDelivers(t *testing.T) {
	testlog.Start(t)

	// Stay silent for the first two requests, answer the third.
	var seen atomic.Uint64
	reply := []byte("late reply\x00with nul")
	broker := brokertest.Serve(t, func(task []byte) ([]byte, bool) {
		if seen.Add(1) < 3 {
			return nil, false
		}
		return reply, true
	})

	const retries = 5
	req, tctx := newTestRequester(t, broker.Endpoint(), 60*time.Millisecond, retries)
	res := req.Do(context.Background(), []byte("task"))

	if res.Outcome != OutcomeDelivered {
		t.Fatalf("outcome: got %v err=%v", res.Outcome, res.Err)
	}
	if !bytes.Equal(res.Reply, reply) {
		t.Fatalf("reply mismatch: got %q want %q", res.Reply, reply)
	}
	if got := broker.Requests(); got != 3 {
		t.Fatalf("send attempts: got %d want 3 (no attempt after success)", got)
	}
	if stats := tctx.Stats(); stats.Opened != 3 || stats.Closed != 3 {
		t.Fatalf("session counts: %+v", stats)
	}
}

func TestDoResendsIdenticalPayload(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Silent(t)

	task := []byte(`{"method":"vm.get","hostname":"vc01.example.org"}`)
	req, _ := newTestRequester(t, broker.Endpoint(), 40*time.Millisecond, 3)
	res := req.Do(context.Background(), task)
	if res.Outcome != OutcomeExhausted {
		t.Fatalf("outcome: got %v", res.Outcome)
	}

	received := broker.Tasks()
	if len(received) != 3 {
		t.Fatalf("tasks received: got %d want 3", len(received))
	}
	for i, got := range received {
		if !bytes.Equal(got, task) {
			t.Fatalf("attempt %d payload mutated: got %q", i+1, got)
		}
	}
}

func TestDoSingleRetryBoundary(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Silent(t)

	req, tctx := newTestRequester(t, broker.Endpoint(), 40*time.Millisecond, 1)
	res := req.Do(context.Background(), []byte("task"))

	if res.Outcome != OutcomeExhausted {
		t.Fatalf("outcome: got %v", res.Outcome)
	}
	if got := broker.Requests(); got != 1 {
		t.Fatalf("send attempts: got %d want exactly 1", got)
	}
	if stats := tctx.Stats(); stats.Opened != 1 || stats.Closed != 1 {
		t.Fatalf("session counts: %+v", stats)
	}
}

func TestDoEmptyReplyDeliveredByteExact(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Serve(t, func([]byte) ([]byte, bool) {
		return []byte{}, true
	})

	req, _ := newTestRequester(t, broker.Endpoint(), 2*time.Second, 3)
	res := req.Do(context.Background(), []byte("task"))
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("outcome: got %v err=%v", res.Outcome, res.Err)
	}
	if len(res.Reply) != 0 {
		t.Fatalf("expected empty reply, got %d bytes", len(res.Reply))
	}
}

func TestDoLargeReplyDeliveredByteExact(t *testing.T) {
	testlog.Start(t)
	reply := bytes.Repeat([]byte{0x00, 0xFF, 0x42}, 32*1024)
	broker := brokertest.Serve(t, func([]byte) ([]byte, bool) {
		return reply, true
	})

	req, _ := newTestRequester(t, broker.Endpoint(), 2*time.Second, 3)
	res := req.Do(context.Background(), []byte("task"))
	if res.Outcome != OutcomeDelivered {
		t.Fatalf("outcome: got %v err=%v", res.Outcome, res.Err)
	}
	if !bytes.Equal(res.Reply, reply) {
		t.Fatalf("reply mismatch: got %d bytes want %d", len(res.Reply), len(reply))
	}
}

func TestDoUnreachableEndpointBehavesAsTimeout(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	const retries = 2
	req, tctx := newTestRequester(t, "tcp://"+addr, 40*time.Millisecond, retries)
	start := time.Now()
	res := req.Do(context.Background(), []byte("task"))

	if res.Outcome != OutcomeExhausted {
		t.Fatalf("refused endpoint must exhaust, got %v err=%v", res.Outcome, res.Err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("retry windows not honored, finished after %v", elapsed)
	}
	stats := tctx.Stats()
	if stats.Opened != retries || stats.Closed != retries {
		t.Fatalf("same discard mechanics as timeout expected: %+v", stats)
	}
}

func TestDoEmptyTaskIsFatal(t *testing.T) {
	testlog.Start(t)
	req, _ := newTestRequester(t, DefaultEndpoint, 40*time.Millisecond, 1)
	res := req.Do(context.Background(), nil)
	if res.Outcome != OutcomeFatal || !errors.Is(res.Err, ErrTaskRequired) {
		t.Fatalf("got outcome=%v err=%v", res.Outcome, res.Err)
	}
}

func TestDoCanceledContextIsFatal(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Silent(t)

	req, _ := newTestRequester(t, broker.Endpoint(), time.Second, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := req.Do(ctx, []byte("task"))
	if res.Outcome != OutcomeFatal || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("got outcome=%v err=%v", res.Outcome, res.Err)
	}
}

func TestDoClosedTransportContextIsFatal(t *testing.T) {
	testlog.Start(t)
	tctx := transport.NewContext(transport.DefaultOptions())
	req, err := NewRequester(tctx, DefaultConfig())
	if err != nil {
		t.Fatalf("new requester: %v", err)
	}
	if err := tctx.Close(); err != nil {
		t.Fatalf("close transport context: %v", err)
	}
	res := req.Do(context.Background(), []byte("task"))
	if res.Outcome != OutcomeFatal || !errors.Is(res.Err, transport.ErrContextClosed) {
		t.Fatalf("got outcome=%v err=%v", res.Outcome, res.Err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "no endpoint", cfg: Config{Timeout: time.Second, Retries: 1}, wantErr: ErrEndpointRequired},
		{name: "negative timeout", cfg: Config{Endpoint: DefaultEndpoint, Timeout: -1, Retries: 1}, wantErr: ErrTimeoutInvalid},
		{name: "negative retries", cfg: Config{Endpoint: DefaultEndpoint, Timeout: time.Second, Retries: -2}, wantErr: ErrRetriesInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("validate: got %v want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRunDriversFrontEnds(t *testing.T) {
	testlog.Start(t)
	broker := brokertest.Echo(t)
	req, _ := newTestRequester(t, broker.Endpoint(), 2*time.Second, 3)

	var consumed []byte
	err := Run(context.Background(),
		req,
		func() ([]byte, error) { return []byte("built task"), nil },
		func(reply []byte) error { consumed = reply; return nil },
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(consumed) != "built task" {
		t.Fatalf("consumer got %q", consumed)
	}

	buildErr := errors.New("bad template")
	err = Run(context.Background(), req,
		func() ([]byte, error) { return nil, buildErr },
		func([]byte) error { return nil },
	)
	if !errors.Is(err, buildErr) {
		t.Fatalf("builder error must propagate, got %v", err)
	}
}
