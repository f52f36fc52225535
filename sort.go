package fluxz

import (
	"cmp"
	"slices"
	"sync"
)

// Sorter buffers an entire stream and emits it in ascending order once the
// upstream completes. It is inherently non-streaming: nothing is emitted
// before the upstream completes, memory grows with the stream, and an
// infinite upstream never produces a value. An upstream error discards the
// buffer and is delivered alone.
type Sorter[T any] struct {
	source  Publisher[T]
	compare func(a, b T) int
	name    string
}

// NewSorter creates an operator that emits all values of source in
// ascending natural order followed by completion.
//
// Example:
//
//	// Distinct letters in alphabetical order
//	sorted := fluxz.NewSorter(fluxz.NewDistinct(letters))
func NewSorter[T cmp.Ordered](source Publisher[T]) *Sorter[T] {
	return NewSorterFunc(source, cmp.Compare[T])
}

// NewSorterFunc creates a sorting operator ordered by compare, which returns
// a negative number when a < b, zero when equal and a positive number when
// a > b. Equal values keep their arrival order.
//
// Example:
//
//	// Orders by descending total
//	byTotal := fluxz.NewSorterFunc(orders, func(a, b Order) int {
//		return cmp.Compare(b.Total, a.Total)
//	})
func NewSorterFunc[T any](source Publisher[T], compare func(a, b T) int) *Sorter[T] {
	return &Sorter[T]{
		source:  source,
		compare: compare,
		name:    "sort",
	}
}

func (s *Sorter[T]) Subscribe(sub Subscriber[T]) {
	s.source.Subscribe(&sortSubscriber[T]{
		downstream: sub,
		compare:    s.compare,
		name:       s.name,
	})
}

func (s *Sorter[T]) Name() string {
	return s.name
}

type sortSubscriber[T any] struct {
	downstream Subscriber[T]
	upstream   Subscription
	compare    func(a, b T) int
	buffer     []T
	name       string

	mu        sync.Mutex
	replay    *sequenceSubscription[T]
	pending   int64
	requested bool
	cancelled bool
	done      bool
}

func (s *sortSubscriber[T]) OnSubscribe(sub Subscription) {
	s.upstream = sub
	s.downstream.OnSubscribe(s)
}

func (s *sortSubscriber[T]) OnNext(v T) {
	if s.done {
		return
	}
	s.buffer = append(s.buffer, v)
}

func (s *sortSubscriber[T]) OnError(err error) {
	if s.done {
		return
	}
	s.done = true
	s.buffer = nil
	s.downstream.OnError(err)
}

func (s *sortSubscriber[T]) OnComplete() {
	if s.done {
		return
	}
	s.done = true

	sorted := s.buffer
	s.buffer = nil
	_, err := invoke(func(values []T) (struct{}, error) {
		slices.SortStableFunc(values, s.compare)
		return struct{}{}, nil
	}, sorted)
	if err != nil {
		s.downstream.OnError(NewProducerError(s.name, nil, err))
		return
	}

	replay := &sequenceSubscription[T]{
		at:         func(i int) T { return sorted[i] },
		count:      len(sorted),
		downstream: s.downstream,
	}

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.replay = replay
	pending := s.pending
	s.pending = 0
	s.mu.Unlock()

	if pending > 0 {
		replay.Request(pending)
	}
}

func (s *sortSubscriber[T]) Request(n int64) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.replay != nil {
		replay := s.replay
		s.mu.Unlock()
		replay.Request(n)
		return
	}
	if n <= 0 {
		s.cancelled = true
		s.mu.Unlock()
		s.upstream.Cancel()
		s.downstream.OnError(ErrInvalidDemand)
		return
	}
	s.pending = addDemand(s.pending, n)
	first := !s.requested
	s.requested = true
	s.mu.Unlock()

	if first {
		s.upstream.Request(Unbounded)
	}
}

func (s *sortSubscriber[T]) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	replay := s.replay
	s.mu.Unlock()

	if replay != nil {
		replay.Cancel()
		return
	}
	s.upstream.Cancel()
}
