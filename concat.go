package fluxz

import (
	"sync"
	"sync/atomic"
)

// Concat emits the values of several sources one after another. The next
// source is subscribed only when the previous one completes, and unmet
// demand carries over to it. An error from any source terminates the stream.
type Concat[T any] struct {
	name    string
	sources []Publisher[T]
}

// NewConcat creates an operator that concatenates sources in order.
//
// Example:
//
//	// Nine words, then a failure
//	failing := fluxz.NewConcat[string](
//		fluxz.Just("all", "work", "no", "play", "makes", "Jack", "a", "dull", "boy"),
//		fluxz.Fail[string](errors.New("Surviving the Nightmare")),
//	)
func NewConcat[T any](sources ...Publisher[T]) *Concat[T] {
	return &Concat[T]{
		name:    "concat",
		sources: sources,
	}
}

func (c *Concat[T]) Subscribe(sub Subscriber[T]) {
	if len(c.sources) == 0 {
		Empty[T]().Subscribe(sub)
		return
	}
	cs := &concatSubscriber[T]{
		downstream: sub,
		sources:    c.sources,
	}
	c.sources[0].Subscribe(cs)
}

func (c *Concat[T]) Name() string {
	return c.name
}

type concatSubscriber[T any] struct {
	downstream Subscriber[T]
	current    Subscription
	sources    []Publisher[T]
	mu         sync.Mutex
	demand     int64
	index      int
	subscribed atomic.Bool
	cancelled  bool
}

func (c *concatSubscriber[T]) OnSubscribe(s Subscription) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		s.Cancel()
		return
	}
	c.current = s
	demand := c.demand
	c.mu.Unlock()

	if c.subscribed.CompareAndSwap(false, true) {
		c.downstream.OnSubscribe(c)
		return
	}
	if demand > 0 {
		s.Request(demand)
	}
}

func (c *concatSubscriber[T]) OnNext(v T) {
	c.mu.Lock()
	if c.demand != Unbounded && c.demand > 0 {
		c.demand--
	}
	c.mu.Unlock()
	c.downstream.OnNext(v)
}

func (c *concatSubscriber[T]) OnError(err error) {
	c.downstream.OnError(err)
}

func (c *concatSubscriber[T]) OnComplete() {
	c.mu.Lock()
	c.index++
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	if c.index >= len(c.sources) {
		c.mu.Unlock()
		c.downstream.OnComplete()
		return
	}
	next := c.sources[c.index]
	c.mu.Unlock()

	next.Subscribe(c)
}

func (c *concatSubscriber[T]) Request(n int64) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	if n > 0 {
		c.demand = addDemand(c.demand, n)
	}
	current := c.current
	c.mu.Unlock()

	current.Request(n)
}

func (c *concatSubscriber[T]) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	current := c.current
	c.mu.Unlock()

	current.Cancel()
}
