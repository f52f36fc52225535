package fluxz

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestSubscribe_Callbacks(t *testing.T) {
	var got []int
	completed := false

	sub := Subscribe[int](Range(1, 3),
		func(v int) { got = append(got, v) },
		func(err error) { t.Errorf("unexpected error: %v", err) },
		func() { completed = true })

	if sub == nil {
		t.Fatal("expected a subscription handle")
	}
	if !slices.Equal(got, []int{1, 2, 3}) || !completed {
		t.Errorf("expected [1 2 3] and completion, got %v, %v", got, completed)
	}
}

func TestSubscribe_NilCallbacks(t *testing.T) {
	Subscribe[int](Range(1, 3), nil, nil, nil)
	Subscribe[int](Fail[int](errors.New("ignored")), nil, nil, nil)
}

func TestSubscribeWithDemand_Deferred(t *testing.T) {
	var got []int
	sub := SubscribeWithDemand[int](Range(1, 5), 0, func(v int) { got = append(got, v) }, nil, nil)

	if len(got) != 0 {
		t.Fatalf("expected no values before request, got %v", got)
	}
	sub.Request(2)
	if !slices.Equal(got, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}
	sub.Cancel()
	sub.Request(10)
	if len(got) != 2 {
		t.Errorf("expected no values after cancel, got %v", got)
	}
}

type countingSubscription struct {
	requested int64
	cancels   int
}

func (c *countingSubscription) Request(n int64) { c.requested = addDemand(c.requested, n) }
func (c *countingSubscription) Cancel()         { c.cancels++ }

func TestDeferredSubscription(t *testing.T) {
	t.Run("accumulates requests before set", func(t *testing.T) {
		var d deferredSubscription
		d.Request(2)
		d.Request(3)

		up := &countingSubscription{}
		if !d.set(up) {
			t.Fatal("expected set to succeed")
		}
		if up.requested != 5 {
			t.Errorf("expected 5 requested, got %d", up.requested)
		}

		d.Request(1)
		if up.requested != 6 {
			t.Errorf("expected forwarded request, got %d", up.requested)
		}
	})

	t.Run("cancel before set cancels on arrival", func(t *testing.T) {
		var d deferredSubscription
		d.Cancel()

		up := &countingSubscription{}
		if d.set(up) {
			t.Error("expected set to refuse a cancelled handle")
		}
		if up.cancels != 1 {
			t.Errorf("expected upstream cancelled once, got %d", up.cancels)
		}
	})

	t.Run("second set is refused", func(t *testing.T) {
		var d deferredSubscription
		d.set(&countingSubscription{})

		extra := &countingSubscription{}
		if d.set(extra) {
			t.Error("expected second set to fail")
		}
		if extra.cancels != 1 {
			t.Error("expected the extra subscription to be cancelled")
		}
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		var d deferredSubscription
		up := &countingSubscription{}
		d.set(up)
		d.Cancel()
		d.Cancel()
		if up.cancels != 1 {
			t.Errorf("expected one cancel, got %d", up.cancels)
		}
	})
}

func TestAddDemand_Saturates(t *testing.T) {
	tests := []struct {
		current, n, expected int64
	}{
		{0, 1, 1},
		{5, 10, 15},
		{Unbounded, 1, Unbounded},
		{Unbounded - 1, 2, Unbounded},
		{1, Unbounded, Unbounded},
	}
	for _, tt := range tests {
		if got := addDemand(tt.current, tt.n); got != tt.expected {
			t.Errorf("addDemand(%d, %d): expected %d, got %d", tt.current, tt.n, tt.expected, got)
		}
	}
}

// serialChecker fails if two deliveries overlap.
type serialChecker struct {
	t      *testing.T
	mu     sync.Mutex
	active bool
	count  int
	done   int
}

func (s *serialChecker) enter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.t.Error("overlapping delivery")
	}
	s.active = true
}

func (s *serialChecker) leave() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *serialChecker) OnSubscribe(Subscription) {}
func (s *serialChecker) OnNext(int)               { s.enter(); s.count++; s.leave() }
func (s *serialChecker) OnError(error)            { s.enter(); s.done++; s.leave() }
func (s *serialChecker) OnComplete()              { s.enter(); s.done++; s.leave() }

func TestSerializer_ConcurrentProducers(t *testing.T) {
	target := &serialChecker{t: t}
	out := newSerializer[int](target)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				out.next(i)
			}
		}()
	}
	wg.Wait()
	out.complete()
	out.next(1)
	out.fail(errors.New("late"))

	if target.count != 8000 {
		t.Errorf("expected 8000 values, got %d", target.count)
	}
	if target.done != 1 {
		t.Errorf("expected exactly one terminal signal, got %d", target.done)
	}
	if !out.terminated() {
		t.Error("expected serializer to report termination")
	}
}

type panicOnFirst struct {
	errs   []error
	panics bool
}

func (p *panicOnFirst) OnSubscribe(Subscription) {}
func (p *panicOnFirst) OnNext(int) {
	if !p.panics {
		p.panics = true
		panic("subscriber failed")
	}
}
func (p *panicOnFirst) OnError(err error) { p.errs = append(p.errs, err) }
func (p *panicOnFirst) OnComplete()       {}

func TestSerializer_RecoversDeliveryPath(t *testing.T) {
	target := &panicOnFirst{}
	out := newSerializer[int](target)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate to the caller")
			}
		}()
		out.next(1)
	}()

	boom := errors.New("after panic")
	out.fail(boom)
	if len(target.errs) != 1 || !errors.Is(target.errs[0], boom) {
		t.Errorf("expected error delivered after panic, got %v", target.errs)
	}
}

func TestSerializer_Stop(t *testing.T) {
	r := newRecorder[int](0)
	out := newSerializer[int](r)
	out.next(1)
	out.stop()
	out.next(2)
	out.complete()

	if !slices.Equal(r.values(), []int{1}) || r.completed() {
		t.Errorf("expected only the value before stop, got %v", r.all())
	}
}
