package verify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/fluxz"
)

// errStreamEnded reports that no further signal can arrive.
var errStreamEnded = errors.New("verify: stream ended")

// recorder is the subscriber under verification. It queues every signal and
// notes any that break the subscriber contract.
type recorder[T any] struct {
	subscription fluxz.Subscription
	notify       chan struct{}
	violation    string
	signals      []fluxz.Signal[T]
	mu           sync.Mutex
	initial      int64
	subscribed   bool
	terminated   bool
	cancelled    bool
}

func newRecorder[T any](initial int64) *recorder[T] {
	return &recorder[T]{
		initial: initial,
		notify:  make(chan struct{}, 1),
	}
}

func (r *recorder[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder[T]) OnSubscribe(s fluxz.Subscription) {
	r.mu.Lock()
	if r.subscribed {
		r.violation = "second onSubscribe"
		r.mu.Unlock()
		s.Cancel()
		r.wake()
		return
	}
	r.subscribed = true
	r.subscription = s
	r.mu.Unlock()
	r.wake()

	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *recorder[T]) record(sig fluxz.Signal[T]) {
	r.mu.Lock()
	switch {
	case !r.subscribed && r.violation == "":
		r.violation = fmt.Sprintf("%s before onSubscribe", sig)
	case r.terminated && r.violation == "":
		r.violation = fmt.Sprintf("%s after terminal signal", sig)
	case r.violation == "":
		r.signals = append(r.signals, sig)
		r.terminated = sig.IsTerminal()
	}
	r.mu.Unlock()
	r.wake()
}

func (r *recorder[T]) OnNext(v T)        { r.record(fluxz.NextSignal(v)) }
func (r *recorder[T]) OnError(err error) { r.record(fluxz.ErrorSignal[T](err)) }
func (r *recorder[T]) OnComplete()       { r.record(fluxz.CompleteSignal[T]()) }

func (r *recorder[T]) protocolViolation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violation
}

// session tracks how far a script has consumed the recorded signals.
type session[T any] struct {
	rec      *recorder[T]
	vs       *fluxz.VirtualScheduler
	timeout  time.Duration
	consumed int
}

// flush runs virtual actions that are already due.
func (s *session[T]) flush() {
	if s.vs != nil {
		s.vs.Advance(0)
	}
}

// wait blocks until the recorder changes or the timeout passes.
func (s *session[T]) wait(timer *time.Timer) bool {
	select {
	case <-s.rec.notify:
		return true
	case <-timer.C:
		return false
	}
}

// next returns the next unconsumed signal, waiting for it if necessary.
func (s *session[T]) next() (fluxz.Signal[T], error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	flushed := false

	for {
		s.rec.mu.Lock()
		if v := s.rec.violation; v != "" {
			s.rec.mu.Unlock()
			return fluxz.Signal[T]{}, mismatch(ReasonProtocolViolation, v)
		}
		if s.consumed < len(s.rec.signals) {
			sig := s.rec.signals[s.consumed]
			s.consumed++
			s.rec.mu.Unlock()
			return sig, nil
		}
		ended := s.rec.terminated || s.rec.cancelled
		s.rec.mu.Unlock()

		if ended {
			return fluxz.Signal[T]{}, errStreamEnded
		}
		if !flushed {
			flushed = true
			s.flush()
			continue
		}
		if !s.wait(timer) {
			return fluxz.Signal[T]{}, mismatch(ReasonMissingTerminal, "no signal").
				withDetail("timed out after %v", s.timeout)
		}
		flushed = false
	}
}

// pending reports whether an unconsumed signal or a violation is queued.
func (s *session[T]) pending() (fluxz.Signal[T], bool) {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	if s.consumed < len(s.rec.signals) {
		return s.rec.signals[s.consumed], true
	}
	return fluxz.Signal[T]{}, false
}

// subscription waits for OnSubscribe and returns the subscription.
func (s *session[T]) subscription() (fluxz.Subscription, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		s.rec.mu.Lock()
		sub, ok := s.rec.subscription, s.rec.subscribed
		s.rec.mu.Unlock()
		if ok {
			return sub, nil
		}
		if !s.wait(timer) {
			return nil, mismatch(ReasonMissingTerminal, "no onSubscribe").
				withDetail("timed out after %v", s.timeout)
		}
	}
}

// cancel cancels the subscription and ends the session.
func (s *session[T]) cancel() {
	s.rec.mu.Lock()
	sub := s.rec.subscription
	s.rec.cancelled = true
	s.rec.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// sleep lets d pass, in virtual time when the session has a scheduler.
func (s *session[T]) sleep(d time.Duration) {
	if s.vs != nil {
		s.vs.Advance(d)
		return
	}
	time.Sleep(d)
}
