package fluxz

import (
	"sync"
	"sync/atomic"
)

// ZipWithLatest combines every value of a primary stream with the most
// recent value of a secondary stream. Only the primary triggers output.
// Primary values that arrive before the secondary has emitted anything are
// dropped, not buffered and not replayed later.
type ZipWithLatest[P, S, R any] struct {
	primary   Publisher[P]
	secondary Publisher[S]
	combiner  func(P, S) (R, error)
	name      string
}

// NewZipWithLatest creates an operator that emits combiner(p, latest) for
// each primary value p once the secondary has emitted at least once.
//
// The stream completes with the primary. An error from either side, or from
// the combiner, terminates the stream and cancels both sides. Completion of
// the secondary is not a terminal event: its last value keeps being used.
//
// When to use:
//   - Stamping events with the latest reading of a slower feed
//   - Joining a trigger stream with current state
//
// Example:
//
//	// Print every clock tick with the current time
//	stamped := fluxz.NewZipWithLatest(clock, now,
//		func(tick string, t time.Time) (string, error) {
//			return tick + " " + t.Format(time.TimeOnly), nil
//		})
func NewZipWithLatest[P, S, R any](primary Publisher[P], secondary Publisher[S], combiner func(P, S) (R, error)) *ZipWithLatest[P, S, R] {
	return &ZipWithLatest[P, S, R]{
		primary:   primary,
		secondary: secondary,
		combiner:  combiner,
		name:      "zipWithLatest",
	}
}

func (z *ZipWithLatest[P, S, R]) Subscribe(sub Subscriber[R]) {
	zs := &zipLatestSubscriber[P, S, R]{
		out:      newSerializer(sub),
		combiner: z.combiner,
		name:     z.name,
	}
	sub.OnSubscribe(zs)
	z.secondary.Subscribe(&zipLatestSecondary[P, S, R]{parent: zs})
	z.primary.Subscribe(&zipLatestPrimary[P, S, R]{parent: zs})
}

func (z *ZipWithLatest[P, S, R]) Name() string {
	return z.name
}

type zipLatestSubscriber[P, S, R any] struct {
	latest    S
	out       *serializer[R]
	combiner  func(P, S) (R, error)
	name      string
	primary   deferredSubscription
	secondary deferredSubscription
	mu        sync.Mutex
	hasLatest bool
	started   atomic.Bool
	done      atomic.Bool
}

// Request starts the secondary on the first positive request, so neither
// side produces before downstream demand exists.
func (z *zipLatestSubscriber[P, S, R]) Request(n int64) {
	if n > 0 && z.started.CompareAndSwap(false, true) {
		z.secondary.Request(Unbounded)
	}
	z.primary.Request(n)
}

func (z *zipLatestSubscriber[P, S, R]) Cancel() {
	z.done.Store(true)
	z.primary.Cancel()
	z.secondary.Cancel()
	z.out.stop()
}

func (z *zipLatestSubscriber[P, S, R]) terminate(err error) {
	if !z.done.CompareAndSwap(false, true) {
		return
	}
	z.primary.Cancel()
	z.secondary.Cancel()
	if err != nil {
		z.out.fail(err)
		return
	}
	z.out.complete()
}

type zipLatestPrimary[P, S, R any] struct {
	parent *zipLatestSubscriber[P, S, R]
}

func (p *zipLatestPrimary[P, S, R]) OnSubscribe(s Subscription) {
	p.parent.primary.set(s)
}

func (p *zipLatestPrimary[P, S, R]) OnNext(v P) {
	z := p.parent
	if z.done.Load() {
		return
	}
	z.mu.Lock()
	latest, ok := z.latest, z.hasLatest
	z.mu.Unlock()

	if !ok {
		z.primary.Request(1)
		return
	}
	out, err := invoke(func(x P) (R, error) { return z.combiner(x, latest) }, v)
	if err != nil {
		z.terminate(NewProducerError(z.name, v, err))
		return
	}
	z.out.next(out)
}

func (p *zipLatestPrimary[P, S, R]) OnError(err error) {
	p.parent.terminate(err)
}

func (p *zipLatestPrimary[P, S, R]) OnComplete() {
	p.parent.terminate(nil)
}

type zipLatestSecondary[P, S, R any] struct {
	parent *zipLatestSubscriber[P, S, R]
}

func (s *zipLatestSecondary[P, S, R]) OnSubscribe(sub Subscription) {
	s.parent.secondary.set(sub)
}

func (s *zipLatestSecondary[P, S, R]) OnNext(v S) {
	z := s.parent
	z.mu.Lock()
	z.latest = v
	z.hasLatest = true
	z.mu.Unlock()
}

func (s *zipLatestSecondary[P, S, R]) OnError(err error) {
	s.parent.terminate(err)
}

func (*zipLatestSecondary[P, S, R]) OnComplete() {}

// Zip combines two streams pairwise: the n-th output is combiner applied to
// the n-th value of each side. It completes as soon as either side has
// completed and its buffered values are used up.
type Zip[A, B, R any] struct {
	left     Publisher[A]
	right    Publisher[B]
	combiner func(A, B) (R, error)
	name     string
}

// NewZip creates an operator that pairs the values of left and right.
//
// Example:
//
//	// Number every word, "1. the", "2. quick", ...
//	numbered := fluxz.NewZip(words, fluxz.Range(1, 100),
//		func(word string, line int) (string, error) {
//			return fmt.Sprintf("%d. %s", line, word), nil
//		})
//
// Each side is prefetched in bounded chunks, so a fast side never buffers
// more than a few dozen values ahead of a slow one.
func NewZip[A, B, R any](left Publisher[A], right Publisher[B], combiner func(A, B) (R, error)) *Zip[A, B, R] {
	return &Zip[A, B, R]{
		left:     left,
		right:    right,
		combiner: combiner,
		name:     "zip",
	}
}

func (z *Zip[A, B, R]) Subscribe(sub Subscriber[R]) {
	zs := &zipSubscriber[A, B, R]{
		downstream: sub,
		combiner:   z.combiner,
		name:       z.name,
	}
	sub.OnSubscribe(zs)
	z.left.Subscribe(&zipLeft[A, B, R]{parent: zs})
	z.right.Subscribe(&zipRight[A, B, R]{parent: zs})
}

func (z *Zip[A, B, R]) Name() string {
	return z.name
}

type zipSubscriber[A, B, R any] struct {
	downstream Subscriber[R]
	leftSub    Subscription
	rightSub   Subscription
	err        error
	combiner   func(A, B) (R, error)
	name       string
	left       []A
	right      []B
	mu         sync.Mutex
	demand     int64
	leftDone   bool
	rightDone  bool
	started    bool
	draining   bool
	cancelled  bool
	done       bool
}

// attach stores an upstream subscription, reporting false if the zip is
// already finished and s was cancelled instead.
func (z *zipSubscriber[A, B, R]) attach(slot *Subscription, s Subscription) bool {
	z.mu.Lock()
	if z.cancelled || z.done {
		z.mu.Unlock()
		s.Cancel()
		return false
	}
	*slot = s
	z.mu.Unlock()
	return true
}

func (z *zipSubscriber[A, B, R]) Request(n int64) {
	z.mu.Lock()
	if n <= 0 {
		if z.err == nil {
			z.err = ErrInvalidDemand
		}
	} else {
		z.demand = addDemand(z.demand, n)
	}
	z.started = true
	z.mu.Unlock()
	z.drain()
}

func (z *zipSubscriber[A, B, R]) Cancel() {
	z.mu.Lock()
	if z.cancelled {
		z.mu.Unlock()
		return
	}
	z.cancelled = true
	z.left, z.right = nil, nil
	leftSub, rightSub := z.leftSub, z.rightSub
	z.mu.Unlock()

	cancelBoth(leftSub, rightSub)
}

func cancelBoth(a, b Subscription) {
	if a != nil {
		a.Cancel()
	}
	if b != nil {
		b.Cancel()
	}
}

func (z *zipSubscriber[A, B, R]) drain() {
	z.mu.Lock()
	if z.draining {
		z.mu.Unlock()
		return
	}
	z.draining = true

	for {
		if z.cancelled || z.done || !z.started {
			z.draining = false
			z.mu.Unlock()
			return
		}

		if z.err != nil {
			z.done = true
			err := z.err
			z.left, z.right = nil, nil
			leftSub, rightSub := z.leftSub, z.rightSub
			z.draining = false
			z.mu.Unlock()

			cancelBoth(leftSub, rightSub)
			z.downstream.OnError(err)
			return
		}

		if z.demand > 0 && len(z.left) > 0 && len(z.right) > 0 {
			a, b := z.left[0], z.right[0]
			var zeroA A
			var zeroB B
			z.left[0], z.right[0] = zeroA, zeroB
			z.left, z.right = z.left[1:], z.right[1:]
			if z.demand != Unbounded {
				z.demand--
			}
			leftSub, rightSub := z.leftSub, z.rightSub
			z.mu.Unlock()

			out, err := invoke(func(x A) (R, error) { return z.combiner(x, b) }, a)
			if err != nil {
				z.mu.Lock()
				if z.err == nil {
					z.err = NewProducerError(z.name, a, err)
				}
				continue
			}

			z.downstream.OnNext(out)
			if leftSub != nil {
				leftSub.Request(1)
			}
			if rightSub != nil {
				rightSub.Request(1)
			}

			z.mu.Lock()
			continue
		}

		if (z.leftDone && len(z.left) == 0) || (z.rightDone && len(z.right) == 0) {
			z.done = true
			leftSub, rightSub := z.leftSub, z.rightSub
			z.draining = false
			z.mu.Unlock()

			cancelBoth(leftSub, rightSub)
			z.downstream.OnComplete()
			return
		}

		z.draining = false
		z.mu.Unlock()
		return
	}
}

func (z *zipSubscriber[A, B, R]) upstreamError(err error) {
	z.mu.Lock()
	if z.err == nil {
		z.err = err
	}
	z.mu.Unlock()
	z.drain()
}

type zipLeft[A, B, R any] struct {
	parent *zipSubscriber[A, B, R]
}

func (l *zipLeft[A, B, R]) OnSubscribe(s Subscription) {
	if l.parent.attach(&l.parent.leftSub, s) {
		s.Request(defaultPrefetch)
	}
}

func (l *zipLeft[A, B, R]) OnNext(v A) {
	z := l.parent
	z.mu.Lock()
	if z.done || z.cancelled {
		z.mu.Unlock()
		return
	}
	z.left = append(z.left, v)
	z.mu.Unlock()
	z.drain()
}

func (l *zipLeft[A, B, R]) OnError(err error) {
	l.parent.upstreamError(err)
}

func (l *zipLeft[A, B, R]) OnComplete() {
	z := l.parent
	z.mu.Lock()
	z.leftDone = true
	z.mu.Unlock()
	z.drain()
}

type zipRight[A, B, R any] struct {
	parent *zipSubscriber[A, B, R]
}

func (r *zipRight[A, B, R]) OnSubscribe(s Subscription) {
	if r.parent.attach(&r.parent.rightSub, s) {
		s.Request(defaultPrefetch)
	}
}

func (r *zipRight[A, B, R]) OnNext(v B) {
	z := r.parent
	z.mu.Lock()
	if z.done || z.cancelled {
		z.mu.Unlock()
		return
	}
	z.right = append(z.right, v)
	z.mu.Unlock()
	z.drain()
}

func (r *zipRight[A, B, R]) OnError(err error) {
	r.parent.upstreamError(err)
}

func (r *zipRight[A, B, R]) OnComplete() {
	z := r.parent
	z.mu.Lock()
	z.rightDone = true
	z.mu.Unlock()
	z.drain()
}
