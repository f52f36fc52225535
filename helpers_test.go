package fluxz

import (
	"sync"
	"sync/atomic"
)

// recorder is a Subscriber that stores everything it receives.
type recorder[T any] struct {
	sub     Subscription
	signals []Signal[T]
	mu      sync.Mutex
	initial int64
}

func newRecorder[T any](initial int64) *recorder[T] {
	return &recorder[T]{initial: initial}
}

// collect subscribes with unbounded demand.
func collect[T any](pub Publisher[T]) *recorder[T] {
	r := newRecorder[T](Unbounded)
	pub.Subscribe(r)
	return r
}

func (r *recorder[T]) OnSubscribe(s Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *recorder[T]) OnNext(v T)        { r.add(NextSignal(v)) }
func (r *recorder[T]) OnError(err error) { r.add(ErrorSignal[T](err)) }
func (r *recorder[T]) OnComplete()       { r.add(CompleteSignal[T]()) }

func (r *recorder[T]) add(sig Signal[T]) {
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
}

func (r *recorder[T]) request(n int64) { r.subscription().Request(n) }
func (r *recorder[T]) cancel()         { r.subscription().Cancel() }

func (r *recorder[T]) subscription() Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub
}

func (r *recorder[T]) all() []Signal[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal[T](nil), r.signals...)
}

func (r *recorder[T]) values() []T {
	var out []T
	for _, sig := range r.all() {
		if sig.Kind == KindNext {
			out = append(out, sig.Value)
		}
	}
	return out
}

func (r *recorder[T]) err() error {
	for _, sig := range r.all() {
		if sig.Kind == KindError {
			return sig.Err
		}
	}
	return nil
}

func (r *recorder[T]) completed() bool {
	for _, sig := range r.all() {
		if sig.Kind == KindComplete {
			return true
		}
	}
	return false
}

// terminals counts terminal signals.
func (r *recorder[T]) terminals() int {
	n := 0
	for _, sig := range r.all() {
		if sig.IsTerminal() {
			n++
		}
	}
	return n
}

// spy wraps a Publisher and records the demand and cancellations that
// reach it.
type spy[T any] struct {
	source     Publisher[T]
	mu         sync.Mutex
	requests   []int64
	subscribes atomic.Int32
	cancels    atomic.Int32
}

func newSpy[T any](source Publisher[T]) *spy[T] {
	return &spy[T]{source: source}
}

func (s *spy[T]) Subscribe(sub Subscriber[T]) {
	s.subscribes.Add(1)
	s.source.Subscribe(&spySubscriber[T]{spy: s, downstream: sub})
}

func (s *spy[T]) requested() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.requests...)
}

type spySubscriber[T any] struct {
	spy        *spy[T]
	downstream Subscriber[T]
	upstream   Subscription
}

func (s *spySubscriber[T]) OnSubscribe(sub Subscription) {
	s.upstream = sub
	s.downstream.OnSubscribe(s)
}

func (s *spySubscriber[T]) OnNext(v T)        { s.downstream.OnNext(v) }
func (s *spySubscriber[T]) OnError(err error) { s.downstream.OnError(err) }
func (s *spySubscriber[T]) OnComplete()       { s.downstream.OnComplete() }

func (s *spySubscriber[T]) Request(n int64) {
	s.spy.mu.Lock()
	s.spy.requests = append(s.spy.requests, n)
	s.spy.mu.Unlock()
	s.upstream.Request(n)
}

func (s *spySubscriber[T]) Cancel() {
	s.spy.cancels.Add(1)
	s.upstream.Cancel()
}
