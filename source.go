package fluxz

import (
	"sync"
)

// Sequence is a cold, demand-driven source of a finite number of values.
// Each subscription replays the full sequence from the start.
type Sequence[T any] struct {
	at    func(int) T
	name  string
	count int
}

// Just creates a Sequence emitting values in order, then completing.
//
// Example:
//
//	words := fluxz.Just("Hello", "World")
func Just[T any](values ...T) *Sequence[T] {
	return FromSlice(values)
}

// FromSlice creates a Sequence emitting the elements of values in order.
// The slice is copied, later changes to values are not observed.
func FromSlice[T any](values []T) *Sequence[T] {
	snapshot := make([]T, len(values))
	copy(snapshot, values)
	return &Sequence[T]{
		at:    func(i int) T { return snapshot[i] },
		count: len(snapshot),
		name:  "sequence",
	}
}

// Range creates a Sequence emitting count consecutive integers starting at start.
//
// Example:
//
//	// Line numbers 1..100
//	lines := fluxz.Range(1, 100)
func Range(start, count int) *Sequence[int] {
	if count < 0 {
		count = 0
	}
	return &Sequence[int]{
		at:    func(i int) int { return start + i },
		count: count,
		name:  "range",
	}
}

func (s *Sequence[T]) Subscribe(sub Subscriber[T]) {
	ss := &sequenceSubscription[T]{
		at:         s.at,
		count:      s.count,
		downstream: sub,
	}
	sub.OnSubscribe(ss)
}

func (s *Sequence[T]) Name() string {
	return s.name
}

// sequenceSubscription emits at(0..count-1) against outstanding demand.
// Re-entrant requests from inside OnNext only add demand; the goroutine that
// is already emitting picks it up, so the call stack stays flat.
type sequenceSubscription[T any] struct {
	downstream Subscriber[T]
	at         func(int) T
	mu         sync.Mutex
	index      int
	count      int
	demand     int64
	emitting   bool
	cancelled  bool
	finished   bool
	invalid    bool
}

func (s *sequenceSubscription[T]) Request(n int64) {
	s.mu.Lock()
	if s.cancelled || s.finished {
		s.mu.Unlock()
		return
	}
	if n <= 0 {
		s.invalid = true
	} else {
		s.demand = addDemand(s.demand, n)
	}
	if s.emitting {
		s.mu.Unlock()
		return
	}
	s.emitting = true

	for {
		if s.cancelled {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		if s.invalid {
			s.finished = true
			s.mu.Unlock()
			s.downstream.OnError(ErrInvalidDemand)
			return
		}
		if s.index >= s.count {
			s.finished = true
			s.mu.Unlock()
			s.downstream.OnComplete()
			return
		}
		if s.demand == 0 {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		i := s.index
		s.index++
		if s.demand != Unbounded {
			s.demand--
		}
		s.mu.Unlock()

		s.downstream.OnNext(s.at(i))

		s.mu.Lock()
	}
}

func (s *sequenceSubscription[T]) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

// Terminal is a source that emits no values and terminates on the first
// request, with an error for Fail and with completion for Empty.
type Terminal[T any] struct {
	err  error
	name string
}

// Empty creates a source that completes without emitting values.
func Empty[T any]() *Terminal[T] {
	return &Terminal[T]{name: "empty"}
}

// Fail creates a source that terminates with err without emitting values.
//
// Example:
//
//	// Words followed by a failure
//	failing := fluxz.NewConcat[string](words, fluxz.Fail[string](errors.New("boom")))
func Fail[T any](err error) *Terminal[T] {
	return &Terminal[T]{err: err, name: "fail"}
}

func (t *Terminal[T]) Subscribe(sub Subscriber[T]) {
	sub.OnSubscribe(&terminalSubscription[T]{downstream: sub, err: t.err})
}

func (t *Terminal[T]) Name() string {
	return t.name
}

type terminalSubscription[T any] struct {
	downstream Subscriber[T]
	err        error
	mu         sync.Mutex
	done       bool
}

func (t *terminalSubscription[T]) Request(n int64) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()

	switch {
	case n <= 0:
		t.downstream.OnError(ErrInvalidDemand)
	case t.err != nil:
		t.downstream.OnError(t.err)
	default:
		t.downstream.OnComplete()
	}
}

func (t *terminalSubscription[T]) Cancel() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// Never is a source that emits nothing and never terminates.
type Never[T any] struct{}

// NewNever creates a source that never signals after OnSubscribe.
func NewNever[T any]() *Never[T] {
	return &Never[T]{}
}

func (*Never[T]) Subscribe(sub Subscriber[T]) {
	sub.OnSubscribe(noopSubscription{})
}

func (*Never[T]) Name() string {
	return "never"
}
