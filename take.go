package fluxz

import (
	"sync/atomic"
)

// Take limits the stream to the first n values.
type Take[T any] struct {
	name   string
	source Publisher[T]
	count  int64
}

// NewTake creates an operator that emits at most count values, then
// completes and cancels the upstream. If the upstream terminates first its
// terminal signal passes through unchanged.
//
// When to use:
//   - Limit processing to a sample of data
//   - Early termination of infinite streams such as intervals
//   - Testing with limited data sets
//
// Example:
//
//	// Five ticks, one per second
//	five := fluxz.NewTake[int64](fluxz.Interval(time.Second, nil), 5)
//
//	// First 10 results of a search
//	top := fluxz.NewTake(results, 10)
func NewTake[T any](source Publisher[T], count int64) *Take[T] {
	if count < 0 {
		count = 0
	}
	return &Take[T]{
		count:  count,
		source: source,
		name:   "take",
	}
}

func (t *Take[T]) Subscribe(sub Subscriber[T]) {
	t.source.Subscribe(&takeSubscriber[T]{
		downstream: sub,
		remaining:  t.count,
		zero:       t.count == 0,
	})
}

func (t *Take[T]) Name() string {
	return t.name
}

type takeSubscriber[T any] struct {
	downstream Subscriber[T]
	upstream   Subscription
	remaining  int64
	cancelled  atomic.Bool
	completed  atomic.Bool
	zero       bool
	done       bool
}

func (t *takeSubscriber[T]) OnSubscribe(s Subscription) {
	t.upstream = s
	if t.zero {
		t.done = true
		s.Cancel()
	}
	t.downstream.OnSubscribe(t)
}

func (t *takeSubscriber[T]) OnNext(v T) {
	if t.done {
		return
	}
	t.remaining--
	last := t.remaining == 0
	if last {
		t.done = true
	}

	t.downstream.OnNext(v)

	if last {
		t.upstream.Cancel()
		t.finish()
	}
}

func (t *takeSubscriber[T]) OnError(err error) {
	if t.done {
		return
	}
	t.done = true
	t.downstream.OnError(err)
}

func (t *takeSubscriber[T]) OnComplete() {
	if t.done {
		return
	}
	t.done = true
	t.downstream.OnComplete()
}

// finish synthesizes the completion once the limit is reached.
func (t *takeSubscriber[T]) finish() {
	if t.cancelled.Load() {
		return
	}
	if t.completed.CompareAndSwap(false, true) {
		t.downstream.OnComplete()
	}
}

func (t *takeSubscriber[T]) Request(n int64) {
	if t.zero {
		// A zero limit completes on first demand.
		t.finish()
		return
	}
	t.upstream.Request(n)
}

func (t *takeSubscriber[T]) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.upstream.Cancel()
	}
}
