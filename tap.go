package fluxz

import (
	"sync/atomic"
)

// Tap executes a side effect function for each signal while passing the
// stream through unchanged. It's used for logging, debugging, metrics and any
// other observation that shouldn't modify the data flow.
//
// The side effect receives every signal, values and terminal signals alike.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Tap[T any] struct {
	name   string
	source Publisher[T]
	fn     func(Signal[T])
}

// NewTap creates an operator that calls fn with each signal before
// forwarding it.
//
// When to use:
//   - Debug logging and tracing
//   - Metrics collection and monitoring
//   - Printing a stream in demonstrations
//
// Example:
//
//	// Simple logging
//	logged := fluxz.NewTap(orders, func(sig fluxz.Signal[Order]) {
//		slog.Debug("order signal", "signal", sig.String())
//	})
//
//	// Metrics collection
//	var processed, failed atomic.Int64
//	counted := fluxz.NewTap(orders, func(sig fluxz.Signal[Order]) {
//		switch sig.Kind {
//		case fluxz.KindNext:
//			processed.Add(1)
//		case fluxz.KindError:
//			failed.Add(1)
//		}
//	})
//
// A panic inside fn on a value terminates the stream with a *ProducerError.
// Panics on terminal signals are recovered and the terminal signal is still
// delivered.
func NewTap[T any](source Publisher[T], fn func(Signal[T])) *Tap[T] {
	return &Tap[T]{
		name:   "tap",
		source: source,
		fn:     fn,
	}
}

func (t *Tap[T]) Subscribe(sub Subscriber[T]) {
	t.source.Subscribe(&tapSubscriber[T]{
		downstream: sub,
		fn:         t.fn,
		name:       t.name,
	})
}

func (t *Tap[T]) Name() string {
	return t.name
}

type tapSubscriber[T any] struct {
	downstream Subscriber[T]
	upstream   Subscription
	fn         func(Signal[T])
	name       string
	cancelled  atomic.Bool
	done       bool
}

func (t *tapSubscriber[T]) observe(sig Signal[T]) error {
	_, err := invoke(func(s Signal[T]) (struct{}, error) {
		t.fn(s)
		return struct{}{}, nil
	}, sig)
	return err
}

func (t *tapSubscriber[T]) OnSubscribe(s Subscription) {
	t.upstream = s
	t.downstream.OnSubscribe(t)
}

func (t *tapSubscriber[T]) OnNext(v T) {
	if t.done {
		return
	}
	if err := t.observe(NextSignal(v)); err != nil {
		t.done = true
		t.upstream.Cancel()
		if !t.cancelled.Load() {
			t.downstream.OnError(NewProducerError(t.name, v, err))
		}
		return
	}
	t.downstream.OnNext(v)
}

func (t *tapSubscriber[T]) OnError(err error) {
	if t.done {
		return
	}
	t.done = true
	_ = t.observe(ErrorSignal[T](err))
	t.downstream.OnError(err)
}

func (t *tapSubscriber[T]) OnComplete() {
	if t.done {
		return
	}
	t.done = true
	_ = t.observe(CompleteSignal[T]())
	t.downstream.OnComplete()
}

func (t *tapSubscriber[T]) Request(n int64) {
	t.upstream.Request(n)
}

func (t *tapSubscriber[T]) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.upstream.Cancel()
	}
}
