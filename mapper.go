package fluxz

import (
	"sync/atomic"
)

// Mapper transforms each value of a stream from one type to another using a
// mapping function. Errors and completion pass through unchanged; a failing
// mapping function terminates the stream with a ProducerError.
type Mapper[In, Out any] struct {
	source Publisher[In]
	fn     func(In) (Out, error)
	name   string
}

// NewMapper creates an operator that transforms values one to one.
// This is the fundamental transformation operation, allowing type-safe
// conversions and data enrichment anywhere in a chain.
//
// When to use:
//   - Type conversions between data representations
//   - Extracting fields or computing derived values
//   - Validating values, failing the stream on the first bad one
//
// Example:
//
//	// Convert strings to uppercase
//	upper := fluxz.NewMapper(words, func(w string) (string, error) {
//		return strings.ToUpper(w), nil
//	})
//
//	// Parse, failing the stream on malformed input
//	numbers := fluxz.NewMapper(lines, strconv.Atoi)
//
// A returned error or a panic inside fn cancels the upstream and delivers a
// *ProducerError wrapping the cause.
func NewMapper[In, Out any](source Publisher[In], fn func(In) (Out, error)) *Mapper[In, Out] {
	return &Mapper[In, Out]{
		source: source,
		fn:     fn,
		name:   "map",
	}
}

func (m *Mapper[In, Out]) Subscribe(sub Subscriber[Out]) {
	m.source.Subscribe(&mapSubscriber[In, Out]{
		downstream: sub,
		fn:         m.fn,
		name:       m.name,
	})
}

func (m *Mapper[In, Out]) Name() string {
	return m.name
}

type mapSubscriber[In, Out any] struct {
	downstream Subscriber[Out]
	upstream   Subscription
	fn         func(In) (Out, error)
	name       string
	cancelled  atomic.Bool
	done       bool
}

func (m *mapSubscriber[In, Out]) OnSubscribe(s Subscription) {
	m.upstream = s
	m.downstream.OnSubscribe(m)
}

func (m *mapSubscriber[In, Out]) OnNext(v In) {
	if m.done {
		return
	}
	out, err := invoke(m.fn, v)
	if err != nil {
		m.done = true
		m.upstream.Cancel()
		if !m.cancelled.Load() {
			m.downstream.OnError(NewProducerError(m.name, v, err))
		}
		return
	}
	m.downstream.OnNext(out)
}

func (m *mapSubscriber[In, Out]) OnError(err error) {
	if m.done {
		return
	}
	m.done = true
	m.downstream.OnError(err)
}

func (m *mapSubscriber[In, Out]) OnComplete() {
	if m.done {
		return
	}
	m.done = true
	m.downstream.OnComplete()
}

func (m *mapSubscriber[In, Out]) Request(n int64) {
	m.upstream.Request(n)
}

func (m *mapSubscriber[In, Out]) Cancel() {
	if m.cancelled.CompareAndSwap(false, true) {
		m.upstream.Cancel()
	}
}
