package fluxz

import (
	"sync/atomic"
)

// Distinct removes duplicate values from a stream. It remembers every value
// seen on a subscription for the lifetime of that subscription, so memory
// grows with the number of distinct values; this is the accepted cost of
// exact deduplication.
type Distinct[T any, K comparable] struct {
	source  Publisher[T]
	keyFunc func(T) K
	name    string
}

// NewDistinct creates an operator that emits each value the first time it
// is seen, in first-occurrence order. Equality is by value.
//
// When to use:
//   - Remove duplicate events or messages
//   - Collect the set of distinct letters of a text
//   - Prevent duplicate notifications
//
// Example:
//
//	// 26 distinct letters of a pangram
//	letters := fluxz.NewDistinct(allLetters)
func NewDistinct[T comparable](source Publisher[T]) *Distinct[T, T] {
	return NewDistinctBy(source, func(v T) T { return v })
}

// NewDistinctBy creates a distinct operator keyed by keyFunc.
// Two values are duplicates when their keys are equal.
//
// Example:
//
//	// Deduplicate events by ID
//	unique := fluxz.NewDistinctBy(events, func(e Event) string {
//		return e.ID
//	})
func NewDistinctBy[T any, K comparable](source Publisher[T], keyFunc func(T) K) *Distinct[T, K] {
	return &Distinct[T, K]{
		source:  source,
		keyFunc: keyFunc,
		name:    "distinct",
	}
}

func (d *Distinct[T, K]) Subscribe(sub Subscriber[T]) {
	d.source.Subscribe(&distinctSubscriber[T, K]{
		downstream: sub,
		keyFunc:    d.keyFunc,
		name:       d.name,
		seen:       make(map[K]struct{}),
	})
}

func (d *Distinct[T, K]) Name() string {
	return d.name
}

type distinctSubscriber[T any, K comparable] struct {
	downstream Subscriber[T]
	upstream   Subscription
	keyFunc    func(T) K
	seen       map[K]struct{}
	name       string
	cancelled  atomic.Bool
	done       bool
}

func (d *distinctSubscriber[T, K]) OnSubscribe(s Subscription) {
	d.upstream = s
	d.downstream.OnSubscribe(d)
}

func (d *distinctSubscriber[T, K]) OnNext(v T) {
	if d.done {
		return
	}
	// Hashing a key of an uncomparable dynamic type panics.
	fresh, err := evaluate(func(x T) bool {
		key := d.keyFunc(x)
		if _, exists := d.seen[key]; exists {
			return false
		}
		d.seen[key] = struct{}{}
		return true
	}, v)
	if err != nil {
		d.done = true
		d.upstream.Cancel()
		if !d.cancelled.Load() {
			d.downstream.OnError(NewProducerError(d.name, v, err))
		}
		return
	}
	if !fresh {
		d.upstream.Request(1)
		return
	}
	d.downstream.OnNext(v)
}

func (d *distinctSubscriber[T, K]) OnError(err error) {
	if d.done {
		return
	}
	d.done = true
	d.seen = nil
	d.downstream.OnError(err)
}

func (d *distinctSubscriber[T, K]) OnComplete() {
	if d.done {
		return
	}
	d.done = true
	d.seen = nil
	d.downstream.OnComplete()
}

func (d *distinctSubscriber[T, K]) Request(n int64) {
	d.upstream.Request(n)
}

func (d *distinctSubscriber[T, K]) Cancel() {
	if d.cancelled.CompareAndSwap(false, true) {
		d.upstream.Cancel()
	}
}
