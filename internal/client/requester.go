package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pollerkit/pollctl/internal/observability"
	"github.com/pollerkit/pollctl/internal/transport"
)

var (
	ErrExhausted    = errors.New("client: did not receive response")
	ErrTaskRequired = errors.New("client: task payload required")
)

// Requester runs the retry/reconnect protocol against one broker endpoint:
// a bounded number of send attempts, each gated by a poll with timeout,
// where a timed-out attempt discards its session and a fresh one is opened
// before the resend. A session that has sent without receiving is never
// sent on again; that is the correctness property everything else hangs on.
type Requester struct {
	tctx *transport.Context
	cfg  Config
}

func NewRequester(tctx *transport.Context, cfg Config) (*Requester, error) {
	if tctx == nil {
		return nil, errors.New("client: transport context required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Requester{tctx: tctx, cfg: cfg}, nil
}

func (r *Requester) Config() Config {
	return r.cfg
}

// Do performs one protocol run for task and returns exactly one Result.
// The task bytes are never mutated and the identical payload is resent on
// every retried attempt. ctx cancellation between waits aborts the run as
// fatal.
func (r *Requester) Do(ctx context.Context, task []byte) Result {
	start := time.Now()
	runID := uuid.NewString()
	logger := log.With().
		Str("run_id", runID).
		Str("endpoint", r.cfg.Endpoint).
		Logger()

	if len(task) == 0 {
		return r.finish(logger, start, Result{Outcome: OutcomeFatal, Err: ErrTaskRequired})
	}

	logger.Debug().
		Dur("timeout", r.cfg.Timeout).
		Int("retries", r.cfg.Retries).
		Int("task_bytes", len(task)).
		Msg("starting protocol run")

	sess, err := r.tctx.Open(r.cfg.Endpoint)
	if err != nil {
		return r.finish(logger, start, Result{
			Outcome: OutcomeFatal,
			Err:     fmt.Errorf("client: open session: %w", err),
		})
	}

	retries := r.cfg.Retries
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			_ = sess.Close()
			return r.finish(logger, start, Result{Outcome: OutcomeFatal, Err: err})
		}

		attempt++
		observability.RecordSendAttempt(r.cfg.Endpoint)
		logger.Debug().Int("attempt", attempt).Msg("sending task")
		if err := sess.Send(task); err != nil {
			_ = sess.Close()
			return r.finish(logger, start, Result{
				Outcome: OutcomeFatal,
				Err:     fmt.Errorf("client: send task: %w", err),
			})
		}

		readable, err := sess.PollReadable(r.cfg.Timeout)
		if err != nil {
			_ = sess.Close()
			return r.finish(logger, start, Result{
				Outcome: OutcomeFatal,
				Err:     fmt.Errorf("client: poll session: %w", err),
			})
		}
		if readable {
			reply, rerr := sess.Receive()
			if rerr == nil {
				_ = sess.Close()
				logger.Debug().Int("attempt", attempt).Int("reply_bytes", len(reply)).
					Msg("received reply")
				return r.finish(logger, start, Result{Outcome: OutcomeDelivered, Reply: reply})
			}
			// Torn or garbled frame: the channel state is as suspect as a
			// timed-out one. Fall through and burn a retry.
			logger.Warn().Int("attempt", attempt).Err(rerr).Msg("discarding unreadable reply")
		}

		retries--
		observability.RecordAttemptTimeout(r.cfg.Endpoint)
		_ = sess.Close()
		if retries <= 0 {
			logger.Warn().Int("attempts", attempt).Msg("did not receive response, giving up")
			return r.finish(logger, start, Result{Outcome: OutcomeExhausted, Err: ErrExhausted})
		}
		logger.Warn().Int("attempt", attempt).Msg("did not receive response, retrying")

		sess, err = r.tctx.Open(r.cfg.Endpoint)
		if err != nil {
			return r.finish(logger, start, Result{
				Outcome: OutcomeFatal,
				Err:     fmt.Errorf("client: reopen session: %w", err),
			})
		}
	}
}

func (r *Requester) finish(logger zerolog.Logger, start time.Time, res Result) Result {
	observability.RecordRun(r.cfg.Endpoint, res.Outcome.String(), time.Since(start))
	if res.Err != nil && res.Outcome == OutcomeFatal {
		logger.Error().Err(res.Err).Msg("protocol run failed")
	}
	return res
}
