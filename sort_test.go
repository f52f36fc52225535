package fluxz

import (
	"cmp"
	"errors"
	"slices"
	"testing"
)

func TestSorter(t *testing.T) {
	r := collect[string](NewSorter[string](Just("q", "b", "z", "a")))

	if !slices.Equal(r.values(), []string{"a", "b", "q", "z"}) || !r.completed() {
		t.Errorf("expected sorted values and completion, got %v", r.all())
	}
}

func TestSorterFunc_Stable(t *testing.T) {
	type item struct {
		key   int
		label string
	}
	items := Just(item{2, "x"}, item{1, "a"}, item{2, "y"}, item{1, "b"})
	sorted := NewSorterFunc[item](items, func(a, b item) int { return cmp.Compare(a.key, b.key) })

	var labels []string
	for _, it := range collect[item](sorted).values() {
		labels = append(labels, it.label)
	}
	if !slices.Equal(labels, []string{"a", "b", "x", "y"}) {
		t.Errorf("expected stable order [a b x y], got %v", labels)
	}
}

func TestSorter_RequestsEverythingUpstream(t *testing.T) {
	source := newSpy[int](Just(3, 1, 2))
	r := newRecorder[int](1)
	NewSorter[int](source).Subscribe(r)

	if got := source.requested(); !slices.Equal(got, []int64{Unbounded}) {
		t.Errorf("expected one unbounded upstream request, got %v", got)
	}
	if !slices.Equal(r.values(), []int{1}) {
		t.Fatalf("expected only the requested value, got %v", r.values())
	}

	r.request(5)
	if !slices.Equal(r.values(), []int{1, 2, 3}) || !r.completed() {
		t.Errorf("expected the rest and completion, got %v", r.all())
	}
}

func TestSorter_NothingBeforeUpstreamCompletes(t *testing.T) {
	r := collect[int](NewSorter[int](NewNever[int]()))
	if len(r.all()) != 0 {
		t.Errorf("expected no signals from an infinite source, got %v", r.all())
	}
	r.cancel()
}

func TestSorter_ErrorDiscardsBuffer(t *testing.T) {
	boom := errors.New("boom")
	r := collect[int](NewSorter[int](NewConcat[int](Just(3, 1), Fail[int](boom))))

	if len(r.values()) != 0 || r.err() != boom {
		t.Errorf("expected the error alone, got %v", r.all())
	}
}

func TestSorter_Empty(t *testing.T) {
	r := collect[int](NewSorter[int](Empty[int]()))
	if !r.completed() || len(r.values()) != 0 {
		t.Errorf("expected bare completion, got %v", r.all())
	}
}
