package fluxz

import (
	"sync"
)

const (
	// defaultPrefetch bounds how many values each merged source may have
	// buffered ahead of downstream demand.
	defaultPrefetch int64 = 32

	// defaultConcurrency bounds how many inner publishers FlatMap runs at once.
	defaultConcurrency int64 = 256
)

// Merge interleaves the values of several sources into a single stream in
// the order they arrive. Values of one source keep their relative order; no
// order is defined across sources.
type Merge[T any] struct {
	name    string
	sources []Publisher[T]
}

// NewMerge creates an operator that merges sources. It completes when every
// source has completed; the first error from any source cancels the others
// and terminates the merged stream.
//
// When to use:
//   - Aggregating events from multiple independent sources
//   - Combining clocks or feeds running at different rates
//   - Collecting results from parallel producers
//
// Example:
//
//	// Merge two filtered clocks into one
//	clock := fluxz.NewMerge[string](
//		fluxz.NewFilter(fast, isFastTick),
//		fluxz.NewFilter(slow, isSlowTick),
//	)
//
// Each source is subscribed with a bounded prefetch and replenished one value
// at a time as values are delivered, so buffering stays bounded regardless of
// how fast the sources produce.
func NewMerge[T any](sources ...Publisher[T]) *Merge[T] {
	return &Merge[T]{
		name:    "merge",
		sources: sources,
	}
}

func (m *Merge[T]) Subscribe(sub Subscriber[T]) {
	core := newMergeCore(sub, defaultPrefetch)
	sub.OnSubscribe(core)

	inners := make([]*mergeInner[T], 0, len(m.sources))
	for range m.sources {
		in := core.addInner()
		if in == nil {
			return
		}
		inners = append(inners, in)
	}
	core.seal()

	for i, source := range m.sources {
		source.Subscribe(inners[i])
	}
}

func (m *Merge[T]) Name() string {
	return m.name
}

type mergeEntry[T any] struct {
	value T
	from  *mergeInner[T]
}

// mergeCore collects values from any number of inner subscriptions into one
// queue and delivers them downstream serially against downstream demand.
// It completes once sealed with no active inners and an empty queue.
type mergeCore[T any] struct {
	downstream  Subscriber[T]
	err         error
	onCancel    func()
	onInnerDone func()
	inners      map[*mergeInner[T]]struct{}
	queue       []mergeEntry[T]
	mu          sync.Mutex
	prefetch    int64
	demand      int64
	active      int
	sealed      bool
	started     bool
	draining    bool
	cancelled   bool
	done        bool
}

func newMergeCore[T any](downstream Subscriber[T], prefetch int64) *mergeCore[T] {
	return &mergeCore[T]{
		downstream: downstream,
		prefetch:   prefetch,
		inners:     make(map[*mergeInner[T]]struct{}),
	}
}

// addInner registers a new inner subscription, or returns nil once the
// merge has terminated or been cancelled.
func (m *mergeCore[T]) addInner() *mergeInner[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled || m.done {
		return nil
	}
	in := &mergeInner[T]{core: m}
	m.inners[in] = struct{}{}
	m.active++
	return in
}

// seal marks that no more inners will be added.
func (m *mergeCore[T]) seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
	m.drain()
}

// fail records err as the terminal error unless one is already recorded.
func (m *mergeCore[T]) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.drain()
}

func (m *mergeCore[T]) Request(n int64) {
	m.mu.Lock()
	if n <= 0 {
		if m.err == nil {
			m.err = ErrInvalidDemand
		}
	} else {
		m.demand = addDemand(m.demand, n)
	}
	m.started = true
	m.mu.Unlock()
	m.drain()
}

func (m *mergeCore[T]) Cancel() {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	m.queue = nil
	inners := m.detachLocked()
	m.mu.Unlock()

	m.cancelAll(inners)
}

// detachLocked removes and returns the upstream subscriptions of all inners.
func (m *mergeCore[T]) detachLocked() []Subscription {
	subs := make([]Subscription, 0, len(m.inners))
	for in := range m.inners {
		in.terminated = true
		if in.sub != nil {
			subs = append(subs, in.sub)
		}
	}
	m.inners = nil
	m.active = 0
	return subs
}

func (m *mergeCore[T]) cancelAll(subs []Subscription) {
	for _, s := range subs {
		s.Cancel()
	}
	if m.onCancel != nil {
		m.onCancel()
	}
}

func (m *mergeCore[T]) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true

	for {
		if m.cancelled || m.done || !m.started {
			if m.cancelled {
				m.queue = nil
			}
			m.draining = false
			m.mu.Unlock()
			return
		}

		if m.err != nil {
			m.done = true
			err := m.err
			m.queue = nil
			inners := m.detachLocked()
			m.draining = false
			m.mu.Unlock()

			m.cancelAll(inners)
			m.downstream.OnError(err)
			return
		}

		if m.demand > 0 && len(m.queue) > 0 {
			e := m.queue[0]
			m.queue[0] = mergeEntry[T]{}
			m.queue = m.queue[1:]
			if m.demand != Unbounded {
				m.demand--
			}
			var replenish Subscription
			if !e.from.terminated {
				replenish = e.from.sub
			}
			m.mu.Unlock()

			m.downstream.OnNext(e.value)
			if replenish != nil {
				replenish.Request(1)
			}

			m.mu.Lock()
			continue
		}

		if m.sealed && m.active == 0 && len(m.queue) == 0 {
			m.done = true
			m.draining = false
			m.mu.Unlock()

			m.downstream.OnComplete()
			return
		}

		m.draining = false
		m.mu.Unlock()
		return
	}
}

// mergeInner is the subscriber attached to one merged source.
type mergeInner[T any] struct {
	core       *mergeCore[T]
	sub        Subscription
	terminated bool
}

func (in *mergeInner[T]) OnSubscribe(s Subscription) {
	m := in.core
	m.mu.Lock()
	if in.terminated || m.cancelled || m.done || in.sub != nil {
		m.mu.Unlock()
		s.Cancel()
		return
	}
	in.sub = s
	m.mu.Unlock()

	s.Request(m.prefetch)
}

func (in *mergeInner[T]) OnNext(v T) {
	m := in.core
	m.mu.Lock()
	if in.terminated || m.cancelled || m.done {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, mergeEntry[T]{value: v, from: in})
	m.mu.Unlock()
	m.drain()
}

func (in *mergeInner[T]) OnError(err error) {
	m := in.core
	m.mu.Lock()
	if in.terminated {
		m.mu.Unlock()
		return
	}
	in.terminated = true
	delete(m.inners, in)
	m.active--
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.drain()
}

func (in *mergeInner[T]) OnComplete() {
	m := in.core
	m.mu.Lock()
	if in.terminated {
		m.mu.Unlock()
		return
	}
	in.terminated = true
	delete(m.inners, in)
	m.active--
	m.mu.Unlock()

	if m.onInnerDone != nil {
		m.onInnerDone()
	}
	m.drain()
}
