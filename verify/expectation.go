package verify

import (
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/fluxz"
)

// step is one entry of a verification script.
type step[T any] struct {
	run      func(s *session[T]) *MismatchError
	desc     string
	terminal bool
}

func (v *StepVerifier[T]) add(st step[T]) *StepVerifier[T] {
	v.steps = append(v.steps, st)
	return v
}

// nextValue consumes one signal that must be a value.
func nextValue[T any](s *session[T]) (T, *MismatchError) {
	var zero T
	sig, err := s.next()
	if err != nil {
		return zero, asMismatch(err)
	}
	if sig.Kind != fluxz.KindNext {
		return zero, mismatch(ReasonPrematureTermination, sig.String())
	}
	return sig.Value, nil
}

// nextTerminal consumes one signal that must be terminal.
func nextTerminal[T any](s *session[T]) (fluxz.Signal[T], *MismatchError) {
	sig, err := s.next()
	if err != nil {
		return sig, asMismatch(err)
	}
	if !sig.IsTerminal() {
		return sig, mismatch(ReasonUnexpectedSignal, sig.String())
	}
	return sig, nil
}

func asMismatch(err error) *MismatchError {
	var m *MismatchError
	if errors.As(err, &m) {
		return m
	}
	if errors.Is(err, errStreamEnded) {
		return mismatch(ReasonUnconsumedExpectation, "end of stream")
	}
	return mismatch(ReasonMissingTerminal, err.Error())
}

// ExpectSubscription expects the publisher to have called OnSubscribe.
func (v *StepVerifier[T]) ExpectSubscription() *StepVerifier[T] {
	return v.add(step[T]{
		desc: "expectSubscription()",
		run: func(s *session[T]) *MismatchError {
			if _, err := s.subscription(); err != nil {
				return asMismatch(err)
			}
			return nil
		},
	})
}

// ExpectNext expects the given values, in order, one expectation per value.
// Values are compared with testify's ObjectsAreEqual.
func (v *StepVerifier[T]) ExpectNext(values ...T) *StepVerifier[T] {
	for _, want := range values {
		v.add(step[T]{
			desc: fmt.Sprintf("expectNext(%v)", want),
			run: func(s *session[T]) *MismatchError {
				got, m := nextValue(s)
				if m != nil {
					return m
				}
				if !assert.ObjectsAreEqual(want, got) {
					return mismatch(ReasonWrongValue, fluxz.NextSignal(got).String()).
						withDetail("expected %v", want)
				}
				return nil
			},
		})
	}
	return v
}

// ExpectNextMatches expects a value for which pred returns true.
func (v *StepVerifier[T]) ExpectNextMatches(pred func(T) bool) *StepVerifier[T] {
	return v.add(step[T]{
		desc: "expectNextMatches(predicate)",
		run: func(s *session[T]) *MismatchError {
			got, m := nextValue(s)
			if m != nil {
				return m
			}
			return matches(pred, got, fluxz.NextSignal(got).String())
		},
	})
}

// ExpectNextCount expects exactly n values without checking them.
func (v *StepVerifier[T]) ExpectNextCount(n int64) *StepVerifier[T] {
	return v.add(step[T]{
		desc: fmt.Sprintf("expectNextCount(%d)", n),
		run: func(s *session[T]) *MismatchError {
			for i := int64(0); i < n; i++ {
				if _, m := nextValue(s); m != nil {
					return m.withDetail("received %d of %d values", i, n)
				}
			}
			return nil
		},
	})
}

// ExpectNextSequence expects the elements of values, in order, as a
// single expectation.
func (v *StepVerifier[T]) ExpectNextSequence(values []T) *StepVerifier[T] {
	want := append([]T(nil), values...)
	return v.add(step[T]{
		desc: fmt.Sprintf("expectNextSequence(%v)", want),
		run: func(s *session[T]) *MismatchError {
			for i, w := range want {
				got, m := nextValue(s)
				if m != nil {
					return m.withDetail("received %d of %d values", i, len(want))
				}
				if !assert.ObjectsAreEqual(w, got) {
					return mismatch(ReasonWrongValue, fluxz.NextSignal(got).String()).
						withDetail("expected %v at index %d", w, i)
				}
			}
			return nil
		},
	})
}

// ExpectError expects the stream to terminate with any error.
func (v *StepVerifier[T]) ExpectError() *StepVerifier[T] {
	return v.expectError("expectError()", func(error) *MismatchError { return nil })
}

// ExpectErrorIs expects an error matching target through errors.Is.
func (v *StepVerifier[T]) ExpectErrorIs(target error) *StepVerifier[T] {
	return v.expectError(fmt.Sprintf("expectErrorIs(%v)", target), func(err error) *MismatchError {
		if !errors.Is(err, target) {
			return mismatch(ReasonWrongValue, fluxz.ErrorSignal[T](err).String())
		}
		return nil
	})
}

// ExpectErrorMessage expects an error whose message is exactly msg.
func (v *StepVerifier[T]) ExpectErrorMessage(msg string) *StepVerifier[T] {
	return v.expectError(fmt.Sprintf("expectErrorMessage(%q)", msg), func(err error) *MismatchError {
		if err.Error() != msg {
			return mismatch(ReasonWrongValue, fluxz.ErrorSignal[T](err).String())
		}
		return nil
	})
}

// ExpectErrorMatches expects an error for which pred returns true.
func (v *StepVerifier[T]) ExpectErrorMatches(pred func(error) bool) *StepVerifier[T] {
	return v.expectError("expectErrorMatches(predicate)", func(err error) *MismatchError {
		return matches(pred, err, fluxz.ErrorSignal[T](err).String())
	})
}

// matches applies pred to v. A panicking predicate fails the expectation.
func matches[V any](pred func(V) bool, v V, observed string) (m *MismatchError) {
	defer func() {
		if p := recover(); p != nil {
			m = mismatch(ReasonPredicateFalse, observed).withDetail("predicate panicked: %v", p)
		}
	}()
	if !pred(v) {
		return mismatch(ReasonPredicateFalse, observed)
	}
	return nil
}

func (v *StepVerifier[T]) expectError(desc string, check func(error) *MismatchError) *StepVerifier[T] {
	return v.add(step[T]{
		desc:     desc,
		terminal: true,
		run: func(s *session[T]) *MismatchError {
			sig, m := nextTerminal(s)
			if m != nil {
				return m
			}
			if sig.Kind != fluxz.KindError {
				return mismatch(ReasonUnexpectedSignal, sig.String())
			}
			return check(sig.Err)
		},
	})
}

// ExpectComplete expects the stream to complete.
func (v *StepVerifier[T]) ExpectComplete() *StepVerifier[T] {
	return v.add(step[T]{
		desc:     "expectComplete()",
		terminal: true,
		run: func(s *session[T]) *MismatchError {
			sig, m := nextTerminal(s)
			if m != nil {
				return m
			}
			if sig.Kind != fluxz.KindComplete {
				return mismatch(ReasonUnexpectedSignal, sig.String())
			}
			return nil
		},
	})
}

// ExpectNoEvent expects no signal while d passes. Under virtual time a
// signal due exactly at the end of the window belongs to the next
// expectation.
func (v *StepVerifier[T]) ExpectNoEvent(d time.Duration) *StepVerifier[T] {
	return v.add(step[T]{
		desc: fmt.Sprintf("expectNoEvent(%v)", d),
		run: func(s *session[T]) *MismatchError {
			check := func() *MismatchError {
				if violation := s.rec.protocolViolation(); violation != "" {
					return mismatch(ReasonProtocolViolation, violation)
				}
				if sig, ok := s.pending(); ok {
					return mismatch(ReasonUnexpectedSignal, sig.String())
				}
				return nil
			}

			s.flush()
			if m := check(); m != nil {
				return m
			}
			if s.vs == nil {
				time.Sleep(d)
				return check()
			}
			if d > time.Nanosecond {
				s.vs.Advance(d - time.Nanosecond)
				if m := check(); m != nil {
					return m
				}
				d = time.Nanosecond
			}
			s.vs.Advance(d)
			return nil
		},
	})
}

// ThenAwait lets d pass without asserting anything.
func (v *StepVerifier[T]) ThenAwait(d time.Duration) *StepVerifier[T] {
	return v.add(step[T]{
		desc: fmt.Sprintf("thenAwait(%v)", d),
		run: func(s *session[T]) *MismatchError {
			s.sleep(d)
			return nil
		},
	})
}

// Then runs fn as a step of the script.
func (v *StepVerifier[T]) Then(fn func()) *StepVerifier[T] {
	return v.add(step[T]{
		desc: "then(task)",
		run: func(*session[T]) (m *MismatchError) {
			defer func() {
				if p := recover(); p != nil {
					m = mismatch(ReasonTaskFailed, fmt.Sprintf("panic: %v", p))
				}
			}()
			fn()
			return nil
		},
	})
}

// ThenRequest requests n more values.
func (v *StepVerifier[T]) ThenRequest(n int64) *StepVerifier[T] {
	return v.add(step[T]{
		desc: fmt.Sprintf("thenRequest(%d)", n),
		run: func(s *session[T]) *MismatchError {
			sub, err := s.subscription()
			if err != nil {
				return asMismatch(err)
			}
			sub.Request(n)
			return nil
		},
	})
}

// ThenCancel cancels the subscription. It ends the script.
func (v *StepVerifier[T]) ThenCancel() *StepVerifier[T] {
	return v.add(step[T]{
		desc:     "thenCancel()",
		terminal: true,
		run: func(s *session[T]) *MismatchError {
			if _, err := s.subscription(); err != nil {
				return asMismatch(err)
			}
			s.cancel()
			return nil
		},
	})
}
