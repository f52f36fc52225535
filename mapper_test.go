package fluxz

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"
)

func TestMapper_BasicTransformation(t *testing.T) {
	upper := NewMapper[string, string](Just("hello", "world"), func(s string) (string, error) {
		return strings.ToUpper(s), nil
	})

	r := collect[string](upper)
	if !slices.Equal(r.values(), []string{"HELLO", "WORLD"}) || !r.completed() {
		t.Errorf("expected [HELLO WORLD] and completion, got %v", r.all())
	}
}

func TestMapper_TypeConversion(t *testing.T) {
	lengths := NewMapper[string, int](Just("a", "bb", "ccc"), func(s string) (int, error) {
		return len(s), nil
	})

	if got := collect[int](lengths).values(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestMapper_ErrorHandling(t *testing.T) {
	source := newSpy[string](Just("1", "2", "x", "4"))
	numbers := NewMapper[string, int](source, strconv.Atoi)

	r := collect[int](numbers)

	if !slices.Equal(r.values(), []int{1, 2}) {
		t.Errorf("expected values before the failure, got %v", r.values())
	}
	var pe *ProducerError
	if !errors.As(r.err(), &pe) {
		t.Fatalf("expected ProducerError, got %v", r.err())
	}
	if pe.Operator != "map" || pe.Value != "x" {
		t.Errorf("expected map failure on x, got %s on %v", pe.Operator, pe.Value)
	}
	var numErr *strconv.NumError
	if !errors.As(r.err(), &numErr) {
		t.Errorf("expected the parse error in the chain, got %v", r.err())
	}
	if source.cancels.Load() != 1 {
		t.Errorf("expected upstream cancelled once, got %d", source.cancels.Load())
	}
	if r.terminals() != 1 {
		t.Errorf("expected one terminal signal, got %v", r.all())
	}
}

func TestMapper_PanicBecomesProducerError(t *testing.T) {
	mapper := NewMapper[int, int](Range(0, 3), func(int) (int, error) {
		panic("mapper exploded")
	})

	r := collect[int](mapper)

	if KindOf(r.err()) != ProducerFailure {
		t.Fatalf("expected producer failure, got %v", r.err())
	}
	var pe *PanicError
	if !errors.As(r.err(), &pe) || pe.Value != "mapper exploded" {
		t.Errorf("expected recovered panic, got %v", r.err())
	}
}

func TestMapper_PassThroughErrors(t *testing.T) {
	boom := errors.New("upstream")
	mapper := NewMapper[int, int](NewConcat[int](Just(1), Fail[int](boom)), func(n int) (int, error) {
		return n * 10, nil
	})

	r := collect[int](mapper)
	if !slices.Equal(r.values(), []int{10}) {
		t.Errorf("expected [10], got %v", r.values())
	}
	if r.err() != boom {
		t.Errorf("expected the upstream error unchanged, got %v", r.err())
	}
}

func TestMapper_PropagatesDemand(t *testing.T) {
	source := newSpy[int](Range(0, 10))
	mapper := NewMapper[int, int](source, func(n int) (int, error) { return n, nil })

	r := newRecorder[int](3)
	mapper.Subscribe(r)
	r.cancel()

	if got := source.requested(); !slices.Equal(got, []int64{3}) {
		t.Errorf("expected upstream request of 3, got %v", got)
	}
	if source.cancels.Load() != 1 {
		t.Errorf("expected cancel to reach the source")
	}
	if len(r.values()) != 3 {
		t.Errorf("expected 3 values, got %v", r.values())
	}
}

func TestMapper_Name(t *testing.T) {
	mapper := NewMapper[int, int](Just(1), func(n int) (int, error) { return n, nil })
	if mapper.Name() != "map" {
		t.Errorf("expected map, got %s", mapper.Name())
	}
}

// Example demonstrates converting values between types.
func ExampleNewMapper() {
	labels := NewMapper[int, string](Range(1, 3), func(n int) (string, error) {
		return fmt.Sprintf("item-%d", n), nil
	})

	Subscribe[string](labels, func(s string) { fmt.Println(s) }, nil, nil)
	// Output:
	// item-1
	// item-2
	// item-3
}
