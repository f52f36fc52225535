package fluxz

import (
	"fmt"
	"sync"
	"time"
)

// RealScheduler runs actions on a Clock, by default the system clock.
// Actions run on timer goroutines, never on the caller's goroutine.
//
// A periodic action is re-armed only after its run returns, so runs never
// overlap. A run that overruns its period delays the next one instead of
// causing a burst of catch-up runs.
//
// A panicking action is recovered, logged, and reported as a *SchedulerError
// to the handler set by WithErrorHandler. A panicking periodic task is
// deregistered.
type RealScheduler struct {
	tasks   map[*realTask]struct{}
	idle    *sync.Cond
	cfg     schedulerConfig
	mu      sync.Mutex
	seq     uint64
	running int
}

// NewRealScheduler creates a scheduler driven by RealClock unless WithClock
// says otherwise.
//
// When to use:
//   - Production streams built on Interval or Timer
//   - Tests against a fake clock that need the real timer code paths
//
// Example:
//
//	sched := fluxz.NewRealScheduler(
//		fluxz.WithSchedulerLogger(logger),
//		fluxz.WithErrorHandler(func(err error) { failures.Add(1) }),
//	)
//	defer sched.Close()
//	ticks := fluxz.Interval(time.Second, sched)
func NewRealScheduler(opts ...SchedulerOption) *RealScheduler {
	s := &RealScheduler{
		tasks: make(map[*realTask]struct{}),
		cfg:   newSchedulerConfig(opts),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Now returns the clock's current time.
func (s *RealScheduler) Now() time.Time {
	return s.cfg.clock.Now()
}

// ScheduleOnce runs action once after delay. A negative delay is treated as zero.
func (s *RealScheduler) ScheduleOnce(delay time.Duration, action func()) Task {
	if delay < 0 {
		delay = 0
	}
	t := s.register("once", 0, action)
	t.arm(delay)
	return t
}

// SchedulePeriodic runs action every period. It panics if period is not positive.
func (s *RealScheduler) SchedulePeriodic(period time.Duration, action func()) Task {
	checkPeriod(period)
	t := s.register("periodic", period, action)
	t.arm(period)
	return t
}

// Pending returns the number of tasks that may still run.
func (s *RealScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Settle blocks until no action is running. A periodic task that was running
// has been re-armed by the time Settle returns, so a test can advance a fake
// clock again without racing the re-arm:
//
//	clock.Advance(time.Second)
//	sched.Settle()
func (s *RealScheduler) Settle() {
	s.mu.Lock()
	for s.running > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close cancels every pending task. The scheduler stays usable.
func (s *RealScheduler) Close() {
	s.mu.Lock()
	tasks := make([]*realTask, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

func (s *RealScheduler) register(kind string, period time.Duration, action func()) *realTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &realTask{
		scheduler: s,
		name:      fmt.Sprintf("%s#%d", kind, s.seq),
		period:    period,
		action:    action,
	}
	s.tasks[t] = struct{}{}
	return t
}

func (s *RealScheduler) remove(t *realTask) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}

// dispatch runs t on its own goroutine. The clock may invoke timer callbacks
// while holding its own lock, so fire must not run on the clock's goroutine.
func (s *RealScheduler) dispatch(t *realTask) {
	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running--
			if s.running == 0 {
				s.idle.Broadcast()
			}
			s.mu.Unlock()
		}()
		t.fire()
	}()
}

type realTask struct {
	scheduler *RealScheduler
	timer     ClockTimer
	action    func()
	name      string
	mu        sync.Mutex
	period    time.Duration
	cancelled bool
}

func (t *realTask) arm(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.timer = t.scheduler.cfg.clock.AfterFunc(delay, func() { t.scheduler.dispatch(t) })
}

func (t *realTask) fire() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	s := t.scheduler
	start := s.cfg.clock.Now()
	if err := runAction(t.action); err != nil {
		s.cfg.report(t.name, err)
		t.Cancel()
		return
	}

	if t.period == 0 {
		t.mu.Lock()
		t.cancelled = true
		t.mu.Unlock()
		s.remove(t)
		return
	}

	next := t.period - s.cfg.clock.Now().Sub(start)
	if next < 0 {
		next = 0
	}
	t.arm(next)
}

func (t *realTask) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	timer := t.timer
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	t.scheduler.remove(t)
}
