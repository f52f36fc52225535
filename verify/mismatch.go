package verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zoobzio/fluxz"
)

var (
	// ErrMismatch is matched by every *MismatchError through errors.Is.
	ErrMismatch = errors.New("verify: expectation mismatch")

	// ErrAlreadyVerified is returned when Verify is called a second time.
	ErrAlreadyVerified = errors.New("verify: script already verified")

	// ErrNoPublisher is returned when Create was given a nil publisher or a
	// WithVirtualTime factory returned one.
	ErrNoPublisher = errors.New("verify: no publisher to verify")

	// ErrNoTerminalStep is returned when a script does not end in an
	// expectation of completion or error, or in ThenCancel.
	ErrNoTerminalStep = errors.New("verify: script must end with a terminal expectation or ThenCancel")
)

// Reason classifies why an expectation failed.
type Reason int

const (
	// ReasonWrongValue means a value or error differed from the expected one.
	ReasonWrongValue Reason = iota + 1
	// ReasonPredicateFalse means a match predicate rejected the signal.
	ReasonPredicateFalse
	// ReasonUnexpectedSignal means a signal of the wrong kind arrived.
	ReasonUnexpectedSignal
	// ReasonPrematureTermination means the stream terminated while values
	// were still expected.
	ReasonPrematureTermination
	// ReasonMissingTerminal means no signal arrived before the timeout.
	ReasonMissingTerminal
	// ReasonUnconsumedExpectation means expectations remained after the
	// stream had terminated or been cancelled.
	ReasonUnconsumedExpectation
	// ReasonProtocolViolation means the publisher broke the subscriber
	// contract, for example by signalling after a terminal signal.
	ReasonProtocolViolation
	// ReasonTaskFailed means a Then task panicked.
	ReasonTaskFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonWrongValue:
		return "wrong value"
	case ReasonPredicateFalse:
		return "predicate false"
	case ReasonUnexpectedSignal:
		return "unexpected signal"
	case ReasonPrematureTermination:
		return "premature termination"
	case ReasonMissingTerminal:
		return "missing terminal signal"
	case ReasonUnconsumedExpectation:
		return "unconsumed expectation"
	case ReasonProtocolViolation:
		return "protocol violation"
	case ReasonTaskFailed:
		return "task failed"
	default:
		return "unknown"
	}
}

// MismatchError describes the first expectation a stream failed.
type MismatchError struct {
	// Step describes the expectation, like expectNext(WORK).
	Step string

	// Observed is the signal that broke the expectation, or a description
	// of its absence.
	Observed string

	// Detail adds context such as how many values of a count arrived.
	Detail string

	// Position is the 1-based ordinal of the expectation in the script.
	Position int

	// Reason classifies the failure.
	Reason Reason
}

// Error implements the error interface.
func (m *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "verify: expectation #%d %s failed: %s", m.Position, m.Step, m.Reason)
	if m.Observed != "" {
		fmt.Fprintf(&b, ", observed %s", m.Observed)
	}
	if m.Detail != "" {
		fmt.Fprintf(&b, " (%s)", m.Detail)
	}
	return b.String()
}

// Is reports whether target is ErrMismatch.
func (*MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// Kind reports fluxz.VerificationFailure.
func (*MismatchError) Kind() fluxz.ErrorKind {
	return fluxz.VerificationFailure
}

func mismatch(reason Reason, observed string) *MismatchError {
	return &MismatchError{Reason: reason, Observed: observed}
}

func (m *MismatchError) withDetail(format string, args ...any) *MismatchError {
	m.Detail = fmt.Sprintf(format, args...)
	return m
}
