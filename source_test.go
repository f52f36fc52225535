package fluxz

import (
	"errors"
	"slices"
	"testing"
)

func TestJust(t *testing.T) {
	r := collect[string](Just("Hello", "World"))

	if !slices.Equal(r.values(), []string{"Hello", "World"}) {
		t.Errorf("expected [Hello World], got %v", r.values())
	}
	if !r.completed() || r.terminals() != 1 {
		t.Errorf("expected a single completion, got %v", r.all())
	}
}

func TestFromSlice_Copies(t *testing.T) {
	words := []string{"a", "b"}
	seq := FromSlice(words)
	words[0] = "changed"

	if got := collect[string](seq).values(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("expected the original elements, got %v", got)
	}
}

func TestSequence_Cold(t *testing.T) {
	seq := Range(1, 3)

	first := collect[int](seq).values()
	second := collect[int](seq).values()

	if !slices.Equal(first, []int{1, 2, 3}) || !slices.Equal(second, first) {
		t.Errorf("expected each subscription to replay 1..3, got %v and %v", first, second)
	}
}

func TestRange_EmptyAndNegative(t *testing.T) {
	for _, count := range []int{0, -5} {
		r := collect[int](Range(10, count))
		if len(r.values()) != 0 || !r.completed() {
			t.Errorf("count %d: expected empty completion, got %v", count, r.all())
		}
	}
}

func TestSequence_NothingBeforeRequest(t *testing.T) {
	r := newRecorder[int](0)
	Range(0, 5).Subscribe(r)

	if len(r.all()) != 0 {
		t.Fatalf("expected no signals before request, got %v", r.all())
	}

	r.request(2)
	if !slices.Equal(r.values(), []int{0, 1}) {
		t.Errorf("expected [0 1], got %v", r.values())
	}

	r.request(3)
	got := r.all()
	if !slices.Equal(r.values(), []int{0, 1, 2, 3, 4}) {
		t.Errorf("expected [0..4], got %v", r.values())
	}
	if got[len(got)-1].Kind != KindComplete {
		t.Errorf("expected completion once exhausted, got %v", got)
	}
}

func TestSequence_CompletesWithoutExtraDemand(t *testing.T) {
	r := newRecorder[int](3)
	Range(0, 3).Subscribe(r)

	if !r.completed() {
		t.Errorf("expected completion when demand matches length, got %v", r.all())
	}
}

func TestSequence_InvalidDemand(t *testing.T) {
	for _, n := range []int64{0, -1} {
		r := newRecorder[int](0)
		Range(0, 3).Subscribe(r)
		r.request(n)

		if !errors.Is(r.err(), ErrInvalidDemand) {
			t.Errorf("request(%d): expected ErrInvalidDemand, got %v", n, r.all())
		}
		r.request(5)
		if len(r.values()) != 0 {
			t.Errorf("request(%d): expected no values after termination, got %v", n, r.values())
		}
	}
}

// cancelAt cancels its subscription after receiving the value stop.
type cancelAt struct {
	sub  Subscription
	got  []int
	stop int
	done bool
}

func (c *cancelAt) OnSubscribe(s Subscription) { c.sub = s; s.Request(Unbounded) }
func (c *cancelAt) OnError(error)              { c.done = true }
func (c *cancelAt) OnComplete()                { c.done = true }
func (c *cancelAt) OnNext(v int) {
	c.got = append(c.got, v)
	if v == c.stop {
		c.sub.Cancel()
	}
}

func TestSequence_Cancel(t *testing.T) {
	c := &cancelAt{stop: 2}
	Range(0, 100).Subscribe(c)

	if !slices.Equal(c.got, []int{0, 1, 2}) {
		t.Errorf("expected [0 1 2], got %v", c.got)
	}
	if c.done {
		t.Error("unexpected terminal signal after cancel")
	}
}

// oneByOne requests the next value from inside OnNext.
type oneByOne struct {
	sub   Subscription
	count int
	done  bool
}

func (o *oneByOne) OnSubscribe(s Subscription) { o.sub = s; s.Request(1) }
func (o *oneByOne) OnNext(int)                 { o.count++; o.sub.Request(1) }
func (o *oneByOne) OnError(error)              {}
func (o *oneByOne) OnComplete()                { o.done = true }

func TestSequence_ReentrantRequestStaysFlat(t *testing.T) {
	o := &oneByOne{}
	Range(0, 1_000_000).Subscribe(o)

	if o.count != 1_000_000 || !o.done {
		t.Errorf("expected 1e6 values and completion, got %d, done=%v", o.count, o.done)
	}
}

func TestEmpty(t *testing.T) {
	r := newRecorder[int](0)
	Empty[int]().Subscribe(r)
	if len(r.all()) != 0 {
		t.Fatalf("expected nothing before request, got %v", r.all())
	}

	r.request(1)
	if !r.completed() || len(r.values()) != 0 {
		t.Errorf("expected bare completion, got %v", r.all())
	}
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	r := collect[int](Fail[int](boom))

	if !errors.Is(r.err(), boom) || r.terminals() != 1 {
		t.Errorf("expected a single boom, got %v", r.all())
	}
	if KindOf(r.err()) != UpstreamFailure {
		t.Errorf("expected upstream failure, got %s", KindOf(r.err()))
	}
}

func TestFail_InvalidDemandWins(t *testing.T) {
	r := newRecorder[int](0)
	Fail[int](errors.New("boom")).Subscribe(r)
	r.request(0)

	if !errors.Is(r.err(), ErrInvalidDemand) {
		t.Errorf("expected ErrInvalidDemand, got %v", r.err())
	}
}

func TestNever(t *testing.T) {
	r := collect[int](NewNever[int]())
	if r.subscription() == nil {
		t.Fatal("expected a subscription")
	}
	if len(r.all()) != 0 {
		t.Errorf("expected no signals, got %v", r.all())
	}
	r.cancel()
}

func TestSourceNames(t *testing.T) {
	names := map[string]interface{ Name() string }{
		"sequence": Just(1),
		"range":    Range(0, 1),
		"empty":    Empty[int](),
		"fail":     Fail[int](errors.New("x")),
		"never":    NewNever[int](),
	}
	for want, pub := range names {
		if pub.Name() != want {
			t.Errorf("expected %s, got %s", want, pub.Name())
		}
	}
}
