package fluxz

import "fmt"

// SignalKind identifies the variant of a Signal.
type SignalKind uint8

const (
	// KindNext carries a value.
	KindNext SignalKind = iota + 1
	// KindError terminates the stream with a cause.
	KindError
	// KindComplete terminates the stream successfully.
	KindComplete
)

func (k SignalKind) String() string {
	switch k {
	case KindNext:
		return "onNext"
	case KindError:
		return "onError"
	case KindComplete:
		return "onComplete"
	default:
		return "unknown"
	}
}

// Signal is one event of a stream: a value, an error or completion.
// It is the value-level counterpart of the Subscriber callbacks and is used
// wherever signals are queued or recorded.
type Signal[T any] struct {
	Value T
	Err   error
	Kind  SignalKind
}

// NextSignal creates a Signal carrying value.
func NextSignal[T any](value T) Signal[T] {
	return Signal[T]{Kind: KindNext, Value: value}
}

// ErrorSignal creates a terminal Signal carrying err.
func ErrorSignal[T any](err error) Signal[T] {
	return Signal[T]{Kind: KindError, Err: err}
}

// CompleteSignal creates a terminal completion Signal.
func CompleteSignal[T any]() Signal[T] {
	return Signal[T]{Kind: KindComplete}
}

// IsTerminal reports whether the signal ends the stream.
func (s Signal[T]) IsTerminal() bool {
	return s.Kind == KindError || s.Kind == KindComplete
}

// Deliver invokes the Subscriber callback matching the signal.
func (s Signal[T]) Deliver(sub Subscriber[T]) {
	switch s.Kind {
	case KindNext:
		sub.OnNext(s.Value)
	case KindError:
		sub.OnError(s.Err)
	case KindComplete:
		sub.OnComplete()
	}
}

// String renders the signal as onNext(v), onError(err) or onComplete().
func (s Signal[T]) String() string {
	switch s.Kind {
	case KindNext:
		return fmt.Sprintf("onNext(%v)", s.Value)
	case KindError:
		return fmt.Sprintf("onError(%v)", s.Err)
	case KindComplete:
		return "onComplete()"
	default:
		return "signal(?)"
	}
}
