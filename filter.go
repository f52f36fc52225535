package fluxz

import (
	"sync/atomic"
)

// Filter selectively passes values through a stream based on a predicate.
// Only values for which the predicate returns true are emitted downstream.
// Every dropped value is replaced by a request for one more from upstream,
// so the downstream demand stays supplied.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Filter[T any] struct {
	name      string
	source    Publisher[T]
	predicate func(T) bool
}

// NewFilter creates an operator that passes values matching predicate.
//
// The predicate should be pure and deterministic. A panic inside it
// terminates the stream with a *ProducerError.
//
// When to use:
//   - Remove invalid or unwanted values from streams
//   - Apply business rules and validation logic
//   - Reduce downstream load by filtering early
//
// Example:
//
//	// Keep words longer than three letters
//	long := fluxz.NewFilter(words, func(w string) bool {
//		return len(w) > 3
//	})
//
//	// Drop the second tick of a clock
//	fast := fluxz.NewFilter(ticks, func(tick string) bool {
//		return !strings.HasSuffix(tick, " 2")
//	})
func NewFilter[T any](source Publisher[T], predicate func(T) bool) *Filter[T] {
	return &Filter[T]{
		name:      "filter",
		source:    source,
		predicate: predicate,
	}
}

func (f *Filter[T]) Subscribe(sub Subscriber[T]) {
	f.source.Subscribe(&filterSubscriber[T]{
		downstream: sub,
		predicate:  f.predicate,
		name:       f.name,
	})
}

func (f *Filter[T]) Name() string {
	return f.name
}

type filterSubscriber[T any] struct {
	downstream Subscriber[T]
	upstream   Subscription
	predicate  func(T) bool
	name       string
	cancelled  atomic.Bool
	done       bool
}

func (f *filterSubscriber[T]) OnSubscribe(s Subscription) {
	f.upstream = s
	f.downstream.OnSubscribe(f)
}

func (f *filterSubscriber[T]) OnNext(v T) {
	if f.done {
		return
	}
	ok, err := evaluate(f.predicate, v)
	if err != nil {
		f.done = true
		f.upstream.Cancel()
		if !f.cancelled.Load() {
			f.downstream.OnError(NewProducerError(f.name, v, err))
		}
		return
	}
	if !ok {
		f.upstream.Request(1)
		return
	}
	f.downstream.OnNext(v)
}

func (f *filterSubscriber[T]) OnError(err error) {
	if f.done {
		return
	}
	f.done = true
	f.downstream.OnError(err)
}

func (f *filterSubscriber[T]) OnComplete() {
	if f.done {
		return
	}
	f.done = true
	f.downstream.OnComplete()
}

func (f *filterSubscriber[T]) Request(n int64) {
	f.upstream.Request(n)
}

func (f *filterSubscriber[T]) Cancel() {
	if f.cancelled.CompareAndSwap(false, true) {
		f.upstream.Cancel()
	}
}
