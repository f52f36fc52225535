package fluxz

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidPeriod terminates an Interval subscribed with a non-positive period.
var ErrInvalidPeriod = errors.New("fluxz: interval period must be positive")

// IntervalSource emits 0, 1, 2, ... one period apart, forever.
// Each subscription registers its own periodic task, so every subscriber
// counts from zero starting one period after it subscribed.
//
// Time cannot be paused for a slow consumer: a tick that finds no outstanding
// demand terminates the subscription with ErrOverflow rather than being
// dropped. Request Unbounded, or limit the stream downstream with Take.
type IntervalSource struct {
	sched  Scheduler
	name   string
	period time.Duration
}

// Interval creates an IntervalSource ticking every period on sched.
// A nil sched uses DefaultScheduler().
//
// When to use:
//   - Clocks and heartbeats
//   - Driving periodic polling with the rest of the pipeline
//
// Example:
//
//	// A fast and a slow clock, five ticks in five seconds
//	vs := fluxz.NewVirtualScheduler()
//	fast := fluxz.NewTake(fluxz.Interval(time.Second, vs), 5)
//
// Cancelling the subscription, including through Take, deregisters the task.
func Interval(period time.Duration, sched Scheduler) *IntervalSource {
	return &IntervalSource{
		sched:  resolveScheduler(sched),
		period: period,
		name:   "interval",
	}
}

func (i *IntervalSource) Subscribe(sub Subscriber[int64]) {
	if i.period <= 0 {
		Fail[int64](fmt.Errorf("%w: %v", ErrInvalidPeriod, i.period)).Subscribe(sub)
		return
	}
	is := &intervalSubscription{
		out:  newSerializer(sub),
		name: i.name,
	}
	sub.OnSubscribe(is)

	is.mu.Lock()
	defer is.mu.Unlock()
	if is.done {
		return
	}
	is.task = i.sched.SchedulePeriodic(i.period, is.tick)
}

func (i *IntervalSource) Name() string {
	return i.name
}

type intervalSubscription struct {
	task   Task
	out    *serializer[int64]
	name   string
	mu     sync.Mutex
	count  int64
	demand int64
	done   bool
}

func (is *intervalSubscription) tick() {
	is.mu.Lock()
	if is.done {
		is.mu.Unlock()
		return
	}
	if is.demand == 0 {
		is.done = true
		task := is.task
		n := is.count
		is.mu.Unlock()

		stopTask(task)
		is.out.fail(overflow(is.name, fmt.Sprintf("tick %d", n)))
		return
	}
	n := is.count
	is.count++
	if is.demand != Unbounded {
		is.demand--
	}
	is.mu.Unlock()

	if err := runAction(func() { is.out.next(n) }); err != nil {
		is.mu.Lock()
		is.done = true
		task := is.task
		is.mu.Unlock()

		stopTask(task)
		is.out.fail(&SchedulerError{Task: is.name, Err: err})
	}
}

func (is *intervalSubscription) Request(n int64) {
	is.mu.Lock()
	if is.done {
		is.mu.Unlock()
		return
	}
	if n > 0 {
		is.demand = addDemand(is.demand, n)
		is.mu.Unlock()
		return
	}
	is.done = true
	task := is.task
	is.mu.Unlock()

	stopTask(task)
	is.out.fail(ErrInvalidDemand)
}

func (is *intervalSubscription) Cancel() {
	is.mu.Lock()
	if is.done {
		is.mu.Unlock()
		return
	}
	is.done = true
	task := is.task
	is.mu.Unlock()

	stopTask(task)
	is.out.stop()
}

func stopTask(t Task) {
	if t != nil {
		t.Cancel()
	}
}

// TimerSource emits a single 0 after a delay, then completes.
type TimerSource struct {
	sched Scheduler
	name  string
	delay time.Duration
}

// Timer creates a TimerSource firing once after delay on sched.
// A nil sched uses DefaultScheduler(). As with Interval, firing without
// outstanding demand terminates with ErrOverflow.
//
// Example:
//
//	// Give up after five seconds
//	deadline := fluxz.Timer(5*time.Second, sched)
func Timer(delay time.Duration, sched Scheduler) *TimerSource {
	return &TimerSource{
		sched: resolveScheduler(sched),
		delay: delay,
		name:  "timer",
	}
}

func (t *TimerSource) Subscribe(sub Subscriber[int64]) {
	ts := &timerSubscription{
		out:  newSerializer(sub),
		name: t.name,
	}
	sub.OnSubscribe(ts)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.done {
		return
	}
	ts.task = t.sched.ScheduleOnce(t.delay, ts.fire)
}

func (t *TimerSource) Name() string {
	return t.name
}

type timerSubscription struct {
	task      Task
	out       *serializer[int64]
	name      string
	mu        sync.Mutex
	requested bool
	done      bool
}

func (ts *timerSubscription) fire() {
	ts.mu.Lock()
	if ts.done {
		ts.mu.Unlock()
		return
	}
	ts.done = true
	requested := ts.requested
	ts.mu.Unlock()

	if !requested {
		ts.out.fail(overflow(ts.name, 0))
		return
	}
	ts.out.next(0)
	ts.out.complete()
}

func (ts *timerSubscription) Request(n int64) {
	ts.mu.Lock()
	if ts.done {
		ts.mu.Unlock()
		return
	}
	if n > 0 {
		ts.requested = true
		ts.mu.Unlock()
		return
	}
	ts.done = true
	task := ts.task
	ts.mu.Unlock()

	stopTask(task)
	ts.out.fail(ErrInvalidDemand)
}

func (ts *timerSubscription) Cancel() {
	ts.mu.Lock()
	if ts.done {
		ts.mu.Unlock()
		return
	}
	ts.done = true
	task := ts.task
	ts.mu.Unlock()

	stopTask(task)
	ts.out.stop()
}
