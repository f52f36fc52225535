// Package testing provides test utilities for fluxz.
package testing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/fluxz"
)

// Probe is a Subscriber that records every signal it receives.
// It requests its initial demand on subscription and exposes the
// Subscription so tests can request more or cancel.
type Probe[T any] struct {
	sub      fluxz.Subscription
	done     chan struct{}
	signals  []fluxz.Signal[T]
	mu       sync.Mutex
	initial  int64
	doneOnce sync.Once
}

// NewProbe creates a Probe that requests initial on subscription.
// An initial of zero requests nothing.
func NewProbe[T any](initial int64) *Probe[T] {
	return &Probe[T]{
		initial: initial,
		done:    make(chan struct{}),
	}
}

func (p *Probe[T]) OnSubscribe(s fluxz.Subscription) {
	p.mu.Lock()
	p.sub = s
	p.mu.Unlock()
	if p.initial > 0 {
		s.Request(p.initial)
	}
}

func (p *Probe[T]) OnNext(v T) {
	p.record(fluxz.NextSignal(v))
}

func (p *Probe[T]) OnError(err error) {
	p.record(fluxz.ErrorSignal[T](err))
}

func (p *Probe[T]) OnComplete() {
	p.record(fluxz.CompleteSignal[T]())
}

func (p *Probe[T]) record(sig fluxz.Signal[T]) {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if sig.IsTerminal() {
		p.doneOnce.Do(func() { close(p.done) })
	}
}

// Request asks the upstream for n more values.
func (p *Probe[T]) Request(n int64) {
	p.mu.Lock()
	sub := p.sub
	p.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

// Cancel cancels the subscription.
func (p *Probe[T]) Cancel() {
	p.mu.Lock()
	sub := p.sub
	p.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Subscribed reports whether OnSubscribe has been received.
func (p *Probe[T]) Subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil
}

// Signals returns a copy of every signal received so far.
func (p *Probe[T]) Signals() []fluxz.Signal[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fluxz.Signal[T](nil), p.signals...)
}

// Values returns the values received so far.
func (p *Probe[T]) Values() []T {
	return Values(p.Signals())
}

// Err returns the terminal error, or nil.
func (p *Probe[T]) Err() error {
	for _, sig := range p.Signals() {
		if sig.Kind == fluxz.KindError {
			return sig.Err
		}
	}
	return nil
}

// Completed reports whether OnComplete was received.
func (p *Probe[T]) Completed() bool {
	for _, sig := range p.Signals() {
		if sig.Kind == fluxz.KindComplete {
			return true
		}
	}
	return false
}

// Done is closed when a terminal signal arrives.
func (p *Probe[T]) Done() <-chan struct{} {
	return p.done
}

// Await waits for a terminal signal and fails t if none arrives in time.
func (p *Probe[T]) Await(t *testing.T, timeout time.Duration) {
	t.Helper()

	select {
	case <-p.done:
	case <-time.After(timeout):
		t.Fatalf("no terminal signal within %v, received %v", timeout, p.Signals())
	}
}

// Values extracts the values of the Next signals.
func Values[T any](signals []fluxz.Signal[T]) []T {
	values := make([]T, 0, len(signals))
	for _, sig := range signals {
		if sig.Kind == fluxz.KindNext {
			values = append(values, sig.Value)
		}
	}
	return values
}

// CollectSignals subscribes to pub with unbounded demand and returns every
// signal up to and including the terminal one. It fails t if the stream
// does not terminate within timeout.
func CollectSignals[T any](t *testing.T, pub fluxz.Publisher[T], timeout time.Duration) []fluxz.Signal[T] {
	t.Helper()

	probe := NewProbe[T](fluxz.Unbounded)
	pub.Subscribe(probe)
	probe.Await(t, timeout)
	return probe.Signals()
}

// CollectValues is CollectSignals returning only the values.
// It fails t unless the stream completes.
func CollectValues[T any](t *testing.T, pub fluxz.Publisher[T], timeout time.Duration) []T {
	t.Helper()

	signals := CollectSignals(t, pub, timeout)
	AssertCompleted(t, signals)
	return Values(signals)
}

// AssertCompleted verifies that signals end with exactly one completion.
func AssertCompleted[T any](t *testing.T, signals []fluxz.Signal[T]) {
	t.Helper()

	require.NotEmpty(t, signals, "expected a completed stream, got no signals")
	last := signals[len(signals)-1]
	assert.Equal(t, fluxz.KindComplete, last.Kind, "expected completion, got %v", last)
	AssertTerminatedOnce(t, signals)
}

// AssertFailed verifies that signals end with an error matching target.
// A nil target accepts any error.
func AssertFailed[T any](t *testing.T, signals []fluxz.Signal[T], target error) {
	t.Helper()

	require.NotEmpty(t, signals, "expected a failed stream, got no signals")
	last := signals[len(signals)-1]
	require.Equal(t, fluxz.KindError, last.Kind, "expected an error, got %v", last)
	if target != nil {
		assert.True(t, errors.Is(last.Err, target), "expected error matching %v, got %v", target, last.Err)
	}
	AssertTerminatedOnce(t, signals)
}

// AssertTerminatedOnce verifies that at most one terminal signal was
// received and that nothing followed it.
func AssertTerminatedOnce[T any](t *testing.T, signals []fluxz.Signal[T]) {
	t.Helper()

	for i, sig := range signals {
		if sig.IsTerminal() && i != len(signals)-1 {
			t.Errorf("signal %d: %v followed by %v", i, sig, signals[i+1:])
		}
	}
}
