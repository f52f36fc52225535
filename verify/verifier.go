// Package verify drives a fluxz.Publisher through a script of expectations
// and reports the first divergence.
//
// A script is built by chaining expectations on a StepVerifier and is run
// by Verify, which subscribes, consumes signals strictly in script order and
// blocks until the script ends or a wait times out:
//
//	_, err := verify.Create[string](upper).
//		ExpectNext("WORK", "PLAY").
//		ExpectComplete().
//		Verify()
//
// WithVirtualTime builds the publisher against a fluxz.VirtualScheduler, so
// scripts covering minutes of Interval ticks run instantly:
//
//	verify.WithVirtualTime(func(vs *fluxz.VirtualScheduler) fluxz.Publisher[int64] {
//		return fluxz.NewTake[int64](fluxz.Interval(time.Second, vs), 5)
//	}).
//		ExpectNoEvent(time.Second).
//		ExpectNext(0).
//		ThenAwait(time.Second).
//		ExpectNext(1).
//		ThenCancel().
//		VerifyT(t)
//
// Failures are *MismatchError values naming the position of the failing
// expectation, what it expected and the signal actually observed.
package verify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/fluxz"
)

// DefaultTimeout bounds every wait for a signal.
const DefaultTimeout = 10 * time.Second

// State is the lifecycle of a verification run.
type State int

const (
	// StateIdle is a script that has not been verified yet.
	StateIdle State = iota
	// StateSubscribed means the publisher has been subscribed.
	StateSubscribed
	// StateMatching means expectations are being consumed.
	StateMatching
	// StateCompleted means every expectation passed.
	StateCompleted
	// StateFailed means an expectation failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateMatching:
		return "matching"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a StepVerifier.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	initialRequest int64
	timeout        time.Duration
}

// WithInitialRequest sets the demand requested on subscription. The default
// is fluxz.Unbounded; zero requests nothing until ThenRequest.
func WithInitialRequest(n int64) Option {
	return func(c *config) {
		c.initialRequest = n
	}
}

// WithTimeout sets how long any single expectation waits for a signal.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger that traces steps and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// StepVerifier is a script of expectations against one publisher.
// Builder methods append to the script and return the same verifier.
type StepVerifier[T any] struct {
	source  fluxz.Publisher[T]
	factory func(*fluxz.VirtualScheduler) fluxz.Publisher[T]
	steps   []step[T]
	cfg     config
	mu      sync.Mutex
	state   State
	ran     bool
}

func newVerifier[T any](opts []Option) *StepVerifier[T] {
	cfg := config{
		logger:         slog.Default(),
		initialRequest: fluxz.Unbounded,
		timeout:        DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &StepVerifier[T]{cfg: cfg}
}

// Create starts a script against pub.
func Create[T any](pub fluxz.Publisher[T], opts ...Option) *StepVerifier[T] {
	v := newVerifier[T](opts)
	v.source = pub
	return v
}

// WithVirtualTime starts a script against the publisher built by factory.
// The factory runs inside Verify, after a fresh VirtualScheduler exists, so
// every timer in the publisher is bound to virtual time. Waits in the
// script (ExpectNoEvent, ThenAwait) advance that scheduler.
//
// The factory must hand its scheduler to every time-based source it builds.
// A source given a nil scheduler falls back to fluxz.DefaultScheduler, which
// runs on the system clock, and the script then waits on wall time until
// the timeout:
//
//	verify.WithVirtualTime(func(vs *fluxz.VirtualScheduler) fluxz.Publisher[int64] {
//		return fluxz.NewTake[int64](fluxz.Interval(time.Second, vs), 3)
//	})
func WithVirtualTime[T any](factory func(*fluxz.VirtualScheduler) fluxz.Publisher[T], opts ...Option) *StepVerifier[T] {
	v := newVerifier[T](opts)
	v.factory = factory
	return v
}

// State returns the current lifecycle state.
func (v *StepVerifier[T]) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *StepVerifier[T]) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// Verify runs the script and returns the real time it took. It returns a
// *MismatchError for the first failing expectation, ErrNoTerminalStep for a
// script that does not end in a terminal step and ErrAlreadyVerified when
// called twice.
func (v *StepVerifier[T]) Verify() (time.Duration, error) {
	v.mu.Lock()
	if v.ran {
		v.mu.Unlock()
		return 0, ErrAlreadyVerified
	}
	v.ran = true
	v.mu.Unlock()

	if len(v.steps) == 0 || !v.steps[len(v.steps)-1].terminal {
		return 0, ErrNoTerminalStep
	}

	start := time.Now()
	logger := v.cfg.logger

	pub := v.source
	var vs *fluxz.VirtualScheduler
	if v.factory != nil {
		vs = fluxz.NewVirtualScheduler(fluxz.WithSchedulerLogger(logger))
		defer vs.Dispose()
		pub = v.factory(vs)
	}
	if pub == nil {
		return 0, ErrNoPublisher
	}

	rec := newRecorder[T](v.cfg.initialRequest)
	s := &session[T]{rec: rec, vs: vs, timeout: v.cfg.timeout}
	pub.Subscribe(rec)
	v.setState(StateSubscribed)

	for i, st := range v.steps {
		v.setState(StateMatching)
		logger.Debug("verify step", "position", i+1, "step", st.desc)
		if m := st.run(s); m != nil {
			m.Position = i + 1
			m.Step = st.desc
			return time.Since(start), v.fail(s, m)
		}
	}

	if violation := rec.protocolViolation(); violation != "" {
		m := mismatch(ReasonProtocolViolation, violation)
		m.Position = len(v.steps)
		m.Step = v.steps[len(v.steps)-1].desc
		return time.Since(start), v.fail(s, m)
	}

	v.setState(StateCompleted)
	return time.Since(start), nil
}

func (v *StepVerifier[T]) fail(s *session[T], m *MismatchError) error {
	v.setState(StateFailed)
	s.cancel()
	v.cfg.logger.Warn("verification failed",
		"position", m.Position,
		"step", m.Step,
		"reason", m.Reason.String(),
		"observed", m.Observed)
	return m
}

// VerifyComplete appends ExpectComplete and runs the script.
func (v *StepVerifier[T]) VerifyComplete() (time.Duration, error) {
	return v.ExpectComplete().Verify()
}

// VerifyError appends ExpectError and runs the script.
func (v *StepVerifier[T]) VerifyError() (time.Duration, error) {
	return v.ExpectError().Verify()
}

// VerifyT runs the script and fails t on any error.
func (v *StepVerifier[T]) VerifyT(t require.TestingT) time.Duration {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	elapsed, err := v.Verify()
	require.NoError(t, err)
	return elapsed
}
