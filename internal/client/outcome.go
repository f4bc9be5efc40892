package client

// Outcome classifies the single terminal result of one protocol run.
type Outcome int

const (
	// OutcomeDelivered means the broker's reply was received intact.
	OutcomeDelivered Outcome = iota
	// OutcomeExhausted means every attempt timed out; the remote side
	// never responded.
	OutcomeExhausted
	// OutcomeFatal means the transport could not provide a session at
	// all; no further attempts were possible.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome surface of one run. Reply is set only for
// OutcomeDelivered and is an owned copy of the broker's bytes, returned
// unmodified. Err is set for OutcomeExhausted and OutcomeFatal.
type Result struct {
	Outcome Outcome
	Reply   []byte
	Err     error
}
