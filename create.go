package fluxz

import (
	"sync"
)

// OverflowStrategy decides what a Bridge does with a value pushed while the
// subscriber has no outstanding demand for it.
type OverflowStrategy int

const (
	// OverflowBuffer queues values until the subscriber requests them.
	// The queue is unbounded.
	OverflowBuffer OverflowStrategy = iota

	// OverflowError terminates the stream with ErrOverflow.
	OverflowError
)

func (o OverflowStrategy) String() string {
	switch o {
	case OverflowBuffer:
		return "buffer"
	case OverflowError:
		return "error"
	default:
		return "unknown"
	}
}

// Emitter is the push side of a Bridge. All methods are safe to call from
// any goroutine; values are forwarded to the subscriber one at a time.
type Emitter[T any] interface {
	// Next pushes a value.
	Next(value T)

	// Error terminates the stream with err after queued values are delivered.
	Error(err error)

	// Complete terminates the stream after queued values are delivered.
	Complete()

	// OnDispose registers fn to run once when the stream terminates or is
	// cancelled. It runs immediately if that already happened.
	OnDispose(fn func())

	// IsCancelled reports whether the subscriber cancelled.
	IsCancelled() bool

	// Requested returns the outstanding demand not yet covered by queued values.
	Requested() int64
}

// CreateOption configures a Bridge.
type CreateOption func(*createConfig)

type createConfig struct {
	overflow OverflowStrategy
}

// WithOverflow selects the overflow strategy. The default is OverflowBuffer.
func WithOverflow(strategy OverflowStrategy) CreateOption {
	return func(c *createConfig) {
		c.overflow = strategy
	}
}

// Bridge adapts a callback-driven producer into a Publisher. The producer
// function runs once per subscription, right after OnSubscribe.
type Bridge[T any] struct {
	producer func(Emitter[T])
	name     string
	cfg      createConfig
}

// Create builds a Bridge around producer.
//
// When to use:
//   - Wrapping listener or callback APIs that push values
//   - Feeding a stream from another goroutine
//
// Example:
//
//	prices := fluxz.Create(func(e fluxz.Emitter[decimal.Decimal]) {
//		id := feeder.AddListener(func(p decimal.Decimal) { e.Next(p) })
//		e.OnDispose(func() { feeder.RemoveListener(id) })
//	})
//
// A panic in producer terminates the stream with a ProducerError.
func Create[T any](producer func(Emitter[T]), opts ...CreateOption) *Bridge[T] {
	b := &Bridge[T]{
		producer: producer,
		name:     "create",
	}
	for _, opt := range opts {
		opt(&b.cfg)
	}
	return b
}

func (b *Bridge[T]) Subscribe(sub Subscriber[T]) {
	e := &emitter[T]{
		downstream: sub,
		overflow:   b.cfg.overflow,
		name:       b.name,
	}
	sub.OnSubscribe(e)
	if e.IsCancelled() {
		return
	}
	_, err := invoke(func(em Emitter[T]) (struct{}, error) {
		b.producer(em)
		return struct{}{}, nil
	}, Emitter[T](e))
	if err != nil {
		e.Error(NewProducerError(b.name, nil, err))
	}
}

func (b *Bridge[T]) Name() string {
	return b.name
}

// emitter buffers pushes and drains them against demand. The terminal
// signal is held back until the first Request and until queued values
// have been delivered.
type emitter[T any] struct {
	downstream Subscriber[T]
	err        error
	name       string
	queue      []T
	disposers  []func()
	mu         sync.Mutex
	demand     int64
	overflow   OverflowStrategy
	terminal   bool
	started    bool
	draining   bool
	cancelled  bool
	finished   bool
}

func (e *emitter[T]) Next(v T) {
	e.mu.Lock()
	if e.terminal || e.cancelled || e.finished {
		e.mu.Unlock()
		return
	}
	if e.overflow == OverflowError && int64(len(e.queue)) >= e.demand {
		e.terminal = true
		e.err = overflow(e.name, v)
		e.queue = nil
		e.mu.Unlock()
		e.drain()
		return
	}
	e.queue = append(e.queue, v)
	e.mu.Unlock()
	e.drain()
}

func (e *emitter[T]) Error(err error) {
	e.terminate(err)
}

func (e *emitter[T]) Complete() {
	e.terminate(nil)
}

func (e *emitter[T]) terminate(err error) {
	e.mu.Lock()
	if e.terminal || e.cancelled || e.finished {
		e.mu.Unlock()
		return
	}
	e.terminal = true
	e.err = err
	e.mu.Unlock()
	e.drain()
}

func (e *emitter[T]) OnDispose(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	if e.cancelled || e.finished {
		e.mu.Unlock()
		fn()
		return
	}
	e.disposers = append(e.disposers, fn)
	e.mu.Unlock()
}

func (e *emitter[T]) IsCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *emitter[T]) Requested() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.demand == Unbounded {
		return Unbounded
	}
	if r := e.demand - int64(len(e.queue)); r > 0 {
		return r
	}
	return 0
}

func (e *emitter[T]) Request(n int64) {
	e.mu.Lock()
	if e.cancelled || e.finished {
		e.mu.Unlock()
		return
	}
	if n <= 0 {
		e.terminal = true
		e.err = ErrInvalidDemand
		e.queue = nil
	} else {
		e.demand = addDemand(e.demand, n)
	}
	e.started = true
	e.mu.Unlock()
	e.drain()
}

func (e *emitter[T]) Cancel() {
	e.mu.Lock()
	if e.cancelled || e.finished {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	e.queue = nil
	disposers := e.disposers
	e.disposers = nil
	e.mu.Unlock()

	runDisposers(disposers)
}

func (e *emitter[T]) drain() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true

	for {
		if e.cancelled || e.finished || !e.started {
			e.draining = false
			e.mu.Unlock()
			return
		}

		if len(e.queue) > 0 && e.demand > 0 {
			v := e.queue[0]
			var zero T
			e.queue[0] = zero
			e.queue = e.queue[1:]
			if e.demand != Unbounded {
				e.demand--
			}
			e.mu.Unlock()

			e.downstream.OnNext(v)

			e.mu.Lock()
			continue
		}

		if e.terminal && len(e.queue) == 0 {
			e.finished = true
			err := e.err
			disposers := e.disposers
			e.disposers = nil
			e.draining = false
			e.mu.Unlock()

			runDisposers(disposers)
			if err != nil {
				e.downstream.OnError(err)
			} else {
				e.downstream.OnComplete()
			}
			return
		}

		e.draining = false
		e.mu.Unlock()
		return
	}
}

func runDisposers(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
