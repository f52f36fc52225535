package fluxz

import (
	"sync"
)

// Subscribe attaches callback functions to pub with unbounded demand and
// returns the Subscription. Any callback may be nil.
//
// Example:
//
//	sub := fluxz.Subscribe(prices,
//		func(p decimal.Decimal) { fmt.Println(p) },
//		func(err error) { log.Printf("feed failed: %v", err) },
//		nil)
//	defer sub.Cancel()
func Subscribe[T any](pub Publisher[T], onNext func(T), onError func(error), onComplete func()) Subscription {
	return SubscribeWithDemand(pub, Unbounded, onNext, onError, onComplete)
}

// SubscribeWithDemand is Subscribe with an explicit initial request.
// A demand of zero subscribes without requesting; call Request on the
// returned Subscription to start the flow.
func SubscribeWithDemand[T any](pub Publisher[T], demand int64, onNext func(T), onError func(error), onComplete func()) Subscription {
	cs := &callbackSubscriber[T]{
		onNext:     onNext,
		onError:    onError,
		onComplete: onComplete,
		initial:    demand,
	}
	pub.Subscribe(cs)
	return &cs.handle
}

type callbackSubscriber[T any] struct {
	onNext     func(T)
	onError    func(error)
	onComplete func()
	handle     deferredSubscription
	initial    int64
}

func (c *callbackSubscriber[T]) OnSubscribe(s Subscription) {
	if !c.handle.set(s) {
		return
	}
	if c.initial > 0 {
		s.Request(c.initial)
	}
}

func (c *callbackSubscriber[T]) OnNext(v T) {
	if c.onNext != nil {
		c.onNext(v)
	}
}

func (c *callbackSubscriber[T]) OnError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *callbackSubscriber[T]) OnComplete() {
	if c.onComplete != nil {
		c.onComplete()
	}
}

// deferredSubscription stands in for a Subscription that has not arrived yet.
// Requests made before set are accumulated, a Cancel before set cancels the
// upstream as soon as it arrives.
type deferredSubscription struct {
	upstream  Subscription
	mu        sync.Mutex
	pending   int64
	cancelled bool
}

// set installs s and reports whether it is still wanted.
func (d *deferredSubscription) set(s Subscription) bool {
	d.mu.Lock()
	if d.upstream != nil || d.cancelled {
		d.mu.Unlock()
		s.Cancel()
		return false
	}
	d.upstream = s
	pending := d.pending
	d.pending = 0
	d.mu.Unlock()

	if pending > 0 {
		s.Request(pending)
	}
	return true
}

func (d *deferredSubscription) Request(n int64) {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return
	}
	up := d.upstream
	if up == nil {
		if n > 0 {
			d.pending = addDemand(d.pending, n)
		}
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	up.Request(n)
}

func (d *deferredSubscription) Cancel() {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return
	}
	d.cancelled = true
	up := d.upstream
	d.mu.Unlock()

	if up != nil {
		up.Cancel()
	}
}

// noopSubscription ignores demand and cancellation.
type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}

// serializer funnels signals from any number of goroutines into a single
// serial delivery path to target. Whoever finds the path idle drains the
// queue; everyone else only enqueues. Nothing is delivered after the first
// terminal signal or after stop.
type serializer[T any] struct {
	target   Subscriber[T]
	queue    []Signal[T]
	mu       sync.Mutex
	draining bool
	done     bool
}

func newSerializer[T any](target Subscriber[T]) *serializer[T] {
	return &serializer[T]{target: target}
}

func (s *serializer[T]) next(v T)      { s.emit(NextSignal(v)) }
func (s *serializer[T]) fail(err error) { s.emit(ErrorSignal[T](err)) }
func (s *serializer[T]) complete()      { s.emit(CompleteSignal[T]()) }

func (s *serializer[T]) emit(sig Signal[T]) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if sig.IsTerminal() {
		s.done = true
	}
	s.queue = append(s.queue, sig)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	defer s.release()

	for len(s.queue) > 0 {
		head := s.queue[0]
		s.queue[0] = Signal[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		head.Deliver(s.target)

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// release frees the delivery path when the target panicked mid-delivery,
// so the caller that recovers can still deliver a terminal signal.
func (s *serializer[T]) release() {
	p := recover()
	if p == nil {
		return
	}
	s.mu.Lock()
	s.draining = false
	s.queue = nil
	s.mu.Unlock()
	panic(p)
}

// stop discards anything queued and refuses further signals.
func (s *serializer[T]) stop() {
	s.mu.Lock()
	s.done = true
	s.queue = nil
	s.mu.Unlock()
}

// terminated reports whether a terminal signal was accepted or stop was called.
func (s *serializer[T]) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
