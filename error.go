package fluxz

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDemand terminates a subscription that requested zero or negative demand.
	ErrInvalidDemand = errors.New("fluxz: request must be positive")

	// ErrOverflow terminates a subscription when a producer had a value to emit
	// but the subscriber had no outstanding demand for it.
	ErrOverflow = errors.New("fluxz: emission exceeded requested demand")
)

// ErrorKind classifies a failure that reached a Subscriber.
type ErrorKind int

const (
	// NoFailure is the kind of a nil error.
	NoFailure ErrorKind = iota
	// UpstreamFailure is an error propagated unchanged from a source.
	UpstreamFailure
	// ProducerFailure is an error returned or raised by a user-supplied function.
	ProducerFailure
	// SchedulerFailure is a panic inside a scheduled action.
	SchedulerFailure
	// VerificationFailure is a divergence detected by a verifier.
	VerificationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case NoFailure:
		return "none"
	case UpstreamFailure:
		return "upstream"
	case ProducerFailure:
		return "producer"
	case SchedulerFailure:
		return "scheduler"
	case VerificationFailure:
		return "verification"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Errors that carry no classification of their own are
// upstream failures: sources propagate their causes unchanged.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoFailure
	}
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return UpstreamFailure
}

// ProducerError is raised when a user-supplied transform, predicate or
// combiner fails inside an operator. It records the operator, the value
// being processed and the underlying cause.
//
//nolint:govet // fieldalignment: struct layout optimized for readability over memory
type ProducerError struct {
	// Value is the upstream value that was being processed.
	Value any

	// Err is the error returned by the function, or a *PanicError.
	Err error

	// Operator identifies which operator invoked the function.
	Operator string

	// Timestamp records when the failure occurred.
	Timestamp time.Time
}

// NewProducerError creates a ProducerError with the current timestamp.
func NewProducerError(operator string, value any, err error) *ProducerError {
	return &ProducerError{
		Value:     value,
		Err:       err,
		Operator:  operator,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (pe *ProducerError) Error() string {
	return fmt.Sprintf("ProducerError[%s]: %v (value: %v)", pe.Operator, pe.Err, pe.Value)
}

// Unwrap returns the underlying error, enabling error wrapping chains.
func (pe *ProducerError) Unwrap() error {
	return pe.Err
}

// Kind reports ProducerFailure.
func (*ProducerError) Kind() ErrorKind {
	return ProducerFailure
}

// SchedulerError reports a panic raised inside a scheduled action.
type SchedulerError struct {
	Err  error
	Task string
}

// Error implements the error interface.
func (se *SchedulerError) Error() string {
	return fmt.Sprintf("SchedulerError[%s]: %v", se.Task, se.Err)
}

// Unwrap returns the underlying error.
func (se *SchedulerError) Unwrap() error {
	return se.Err
}

// Kind reports SchedulerFailure.
func (*SchedulerError) Kind() ErrorKind {
	return SchedulerFailure
}

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

// Unwrap exposes the recovered value when it is itself an error.
func (pe *PanicError) Unwrap() error {
	if err, ok := pe.Value.(error); ok {
		return err
	}
	return nil
}

// invoke calls fn with v, converting a panic into a *PanicError.
func invoke[T, R any](fn func(T) (R, error), v T) (result R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return fn(v)
}

// evaluate calls pred with v, converting a panic into a *PanicError.
func evaluate[T any](pred func(T) bool, v T) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return pred(v), nil
}

// overflow builds the ErrOverflow failure for a producer named by source.
func overflow(source string, detail any) error {
	return fmt.Errorf("%w: %s could not emit %v for lack of requests", ErrOverflow, source, detail)
}
