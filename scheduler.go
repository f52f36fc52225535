package fluxz

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a handle to a scheduled action.
type Task interface {
	// Cancel prevents any further run of the action. It is idempotent and
	// does not interrupt a run already in progress.
	Cancel()
}

// Scheduler is the time source of the engine. Interval and Timer sources,
// and anything else that waits, go through a Scheduler so that tests can
// substitute a VirtualScheduler for real time.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// ScheduleOnce runs action once after delay.
	ScheduleOnce(delay time.Duration, action func()) Task

	// SchedulePeriodic runs action every period, the first run one period
	// from now. Runs of the same task never overlap. period must be positive.
	SchedulePeriodic(period time.Duration, action func()) Task
}

// SchedulerOption configures a RealScheduler or VirtualScheduler.
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	clock   Clock
	logger  *slog.Logger
	onError func(error)
}

func newSchedulerConfig(opts []SchedulerOption) schedulerConfig {
	cfg := schedulerConfig{
		clock:  RealClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithClock sets the clock a RealScheduler waits on. It has no effect on a
// VirtualScheduler.
//
// Example:
//
//	clock := clockz.NewFakeClock()
//	sched := fluxz.NewRealScheduler(fluxz.WithClock(clock))
//	clock.Advance(time.Second)
//	sched.Settle()
func WithClock(clock Clock) SchedulerOption {
	return func(c *schedulerConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSchedulerLogger sets the logger used to report panicking actions.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(c *schedulerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorHandler registers fn to receive a *SchedulerError for every
// panicking action.
func WithErrorHandler(fn func(error)) SchedulerOption {
	return func(c *schedulerConfig) {
		c.onError = fn
	}
}

// report logs a recovered panic and forwards it to the error handler.
func (c *schedulerConfig) report(task string, err error) {
	se := &SchedulerError{Task: task, Err: err}
	c.logger.Error("scheduled action panicked", "task", task, "error", err)
	if c.onError != nil {
		c.onError(se)
	}
}

// runAction calls action, converting a panic into a *PanicError.
func runAction(action func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	action()
	return nil
}

func checkPeriod(period time.Duration) {
	if period <= 0 {
		panic(fmt.Sprintf("fluxz: non-positive period %v for SchedulePeriodic", period))
	}
}

var (
	defaultSchedulerOnce sync.Once
	defaultScheduler     *RealScheduler
)

// DefaultScheduler returns the process-wide RealScheduler used when a nil
// Scheduler is passed to a time-based source.
func DefaultScheduler() Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewRealScheduler()
	})
	return defaultScheduler
}

func resolveScheduler(s Scheduler) Scheduler {
	if s == nil {
		return DefaultScheduler()
	}
	return s
}
