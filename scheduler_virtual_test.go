package fluxz

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestVirtualScheduler_Order(t *testing.T) {
	vs := NewVirtualScheduler()
	var got []string
	vs.ScheduleOnce(3*time.Second, func() { got = append(got, "c") })
	vs.ScheduleOnce(time.Second, func() { got = append(got, "a") })
	vs.ScheduleOnce(2*time.Second, func() { got = append(got, "b1") })
	vs.ScheduleOnce(2*time.Second, func() { got = append(got, "b2") })

	vs.Advance(3 * time.Second)
	if !slices.Equal(got, []string{"a", "b1", "b2", "c"}) {
		t.Errorf("expected due order with FIFO ties, got %v", got)
	}
}

func TestVirtualScheduler_Now(t *testing.T) {
	vs := NewVirtualScheduler()
	start := vs.Now()

	var at time.Duration
	vs.ScheduleOnce(time.Minute, func() { at = vs.Now().Sub(start) })
	vs.Advance(time.Hour)

	if at != time.Minute {
		t.Errorf("expected the action to observe its due time, got %v", at)
	}
	if vs.Now().Sub(start) != time.Hour {
		t.Errorf("expected the clock at the target, got %v", vs.Now().Sub(start))
	}

	vs.AdvanceTo(start)
	if vs.Now().Sub(start) != time.Hour {
		t.Error("expected time never to move backwards")
	}
}

func TestVirtualScheduler_NothingBeforeAdvance(t *testing.T) {
	vs := NewVirtualScheduler()
	ran := false
	vs.ScheduleOnce(0, func() { ran = true })

	if ran {
		t.Fatal("expected nothing to run before Advance")
	}
	vs.Advance(0)
	if !ran {
		t.Error("expected Advance(0) to run due actions")
	}
}

func TestVirtualScheduler_NestedScheduling(t *testing.T) {
	vs := NewVirtualScheduler()
	var got []string
	vs.ScheduleOnce(time.Second, func() {
		got = append(got, "outer")
		vs.ScheduleOnce(time.Second, func() { got = append(got, "inner") })
		vs.ScheduleOnce(time.Hour, func() { got = append(got, "later") })
	})

	vs.Advance(5 * time.Second)
	if !slices.Equal(got, []string{"outer", "inner"}) {
		t.Errorf("expected actions due inside the window to run, got %v", got)
	}
	if vs.Pending() != 1 {
		t.Errorf("expected the later action pending, got %d", vs.Pending())
	}
}

func TestVirtualScheduler_Periodic(t *testing.T) {
	vs := NewVirtualScheduler()
	runs := 0
	task := vs.SchedulePeriodic(time.Second, func() { runs++ })

	vs.Advance(10 * time.Second)
	if runs != 10 {
		t.Errorf("expected 10 runs, got %d", runs)
	}

	task.Cancel()
	task.Cancel()
	vs.Advance(10 * time.Second)
	if runs != 10 || vs.Pending() != 0 {
		t.Errorf("expected no runs after cancel, got %d runs and %d pending", runs, vs.Pending())
	}
}

func TestVirtualScheduler_CancelFromAction(t *testing.T) {
	vs := NewVirtualScheduler()
	runs := 0
	var task Task
	task = vs.SchedulePeriodic(time.Second, func() {
		runs++
		if runs == 3 {
			task.Cancel()
		}
	})

	vs.Advance(time.Minute)
	if runs != 3 {
		t.Errorf("expected 3 runs, got %d", runs)
	}
}

func TestVirtualScheduler_Dispose(t *testing.T) {
	vs := NewVirtualScheduler()
	ran := false
	vs.ScheduleOnce(time.Second, func() { ran = true })
	vs.SchedulePeriodic(time.Second, func() { ran = true })

	vs.Dispose()
	vs.Advance(time.Minute)
	if ran || vs.Pending() != 0 {
		t.Error("expected disposed tasks never to run")
	}
}

func TestVirtualScheduler_PanicReported(t *testing.T) {
	var reported []error
	vs := NewVirtualScheduler(WithErrorHandler(func(err error) { reported = append(reported, err) }))

	runs := 0
	vs.SchedulePeriodic(time.Second, func() {
		runs++
		panic("tick failed")
	})
	after := false
	vs.ScheduleOnce(2*time.Second, func() { after = true })

	vs.Advance(5 * time.Second)

	if runs != 1 {
		t.Errorf("expected a panicking periodic task deregistered, got %d runs", runs)
	}
	if !after {
		t.Error("expected other tasks to keep running")
	}
	if len(reported) != 1 {
		t.Fatalf("expected one report, got %v", reported)
	}
	var se *SchedulerError
	if !errors.As(reported[0], &se) || se.Task != "periodic#1" {
		t.Errorf("expected SchedulerError for periodic#1, got %v", reported[0])
	}
	var pe *PanicError
	if !errors.As(reported[0], &pe) || pe.Value != "tick failed" {
		t.Errorf("expected the panic value, got %v", reported[0])
	}
}

func TestVirtualScheduler_NonPositivePeriodPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	NewVirtualScheduler().SchedulePeriodic(0, func() {})
}
