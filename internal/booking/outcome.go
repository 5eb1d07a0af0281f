package booking

// OutcomeKind classifies the terminal state of an execution attempt-sequence.
type OutcomeKind int

const (
	// OutcomeSuccess: the venue confirmed the booking.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeConflict: the venue reported a timing race; retryable.
	OutcomeConflict
	// OutcomeFailure: the venue declared a non-retryable failure.
	OutcomeFailure
	// OutcomeTransportError: the call itself failed (network/parse); retryable.
	OutcomeTransportError
	// OutcomeTimeout: the retry window expired without success or a
	// definitive failure.
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFailure:
		return "failure"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the result of one attempt, or of the whole loop once it exits.
// Not persisted; consumed immediately to build the notification.
type Outcome struct {
	Kind         OutcomeKind
	Confirmation string // venue order id, success only
	Message      string // venue message or error text
	Code         int    // venue error code, terminal failures only
	Attempts     int    // filled by the executor on loop exit
}

func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }
