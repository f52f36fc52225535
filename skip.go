package fluxz

// Skip discards the first n values of a stream.
type Skip[T any] struct {
	name   string
	source Publisher[T]
	count  int64
}

// NewSkip creates an operator that skips the first count values.
// After skipping count values, all subsequent values are passed through.
// Each skipped value is replaced by a request for one more from upstream.
//
// When to use:
//   - Skip headers or metadata at the start of a stream
//   - Ignore warm-up ticks of an interval
//   - Implement offset-based pagination
//
// Example:
//
//	// Skip the first 10 warm-up readings
//	stable := fluxz.NewSkip(readings, 10)
func NewSkip[T any](source Publisher[T], count int64) *Skip[T] {
	return &Skip[T]{
		count:  count,
		source: source,
		name:   "skip",
	}
}

func (s *Skip[T]) Subscribe(sub Subscriber[T]) {
	s.source.Subscribe(&skipSubscriber[T]{
		downstream: sub,
		remaining:  s.count,
	})
}

func (s *Skip[T]) Name() string {
	return s.name
}

type skipSubscriber[T any] struct {
	downstream Subscriber[T]
	upstream   Subscription
	remaining  int64
}

func (s *skipSubscriber[T]) OnSubscribe(sub Subscription) {
	s.upstream = sub
	s.downstream.OnSubscribe(sub)
}

func (s *skipSubscriber[T]) OnNext(v T) {
	if s.remaining > 0 {
		s.remaining--
		s.upstream.Request(1)
		return
	}
	s.downstream.OnNext(v)
}

func (s *skipSubscriber[T]) OnError(err error) {
	s.downstream.OnError(err)
}

func (s *skipSubscriber[T]) OnComplete() {
	s.downstream.OnComplete()
}
