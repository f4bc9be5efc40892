package client

import "context"

// BuildFunc produces the serialized task request for one run.
type BuildFunc func() ([]byte, error)

// ConsumeFunc receives the delivered reply bytes for display or forwarding.
// The bytes are owned by the callee and are not reused afterwards.
type ConsumeFunc func(reply []byte) error

// Run is the shared front-end driver: build the task, run the protocol,
// hand the reply to the consumer. Every front-end goes through this one
// path instead of duplicating the retry loop.
func Run(ctx context.Context, r *Requester, build BuildFunc, consume ConsumeFunc) error {
	task, err := build()
	if err != nil {
		return err
	}
	res := r.Do(ctx, task)
	switch res.Outcome {
	case OutcomeDelivered:
		return consume(res.Reply)
	case OutcomeExhausted:
		return res.Err
	default:
		return res.Err
	}
}
