// Package fluxz provides a push-based reactive stream engine: type-safe
// publishers, demand-driven subscriptions, composable operators and a
// pluggable time source.
//
// The core abstraction is the Publisher interface. A Publisher describes how
// to produce a stream of signals for a Subscriber; nothing happens until a
// Subscriber attaches and requests demand through its Subscription.
//
// Basic usage:
//
//	words := fluxz.Just("all", "work", "no", "play")
//	long := fluxz.NewFilter(words, func(w string) bool { return len(w) > 3 })
//	upper := fluxz.NewMapper(long, func(w string) (string, error) {
//		return strings.ToUpper(w), nil
//	})
//
//	fluxz.Subscribe(upper,
//		func(w string) { fmt.Println(w) },
//		func(err error) { log.Printf("stream failed: %v", err) },
//		func() { fmt.Println("done") })
//
// The package provides:
//   - Sources: Just, FromSlice, Range, Empty, Fail, Never, Create, Interval, Timer
//   - Transformations: Mapper, Filter, FlatMap, Distinct, Sorter, Tap
//   - Combination: Merge, Concat, Zip, ZipWithLatest
//   - Limiting: Take, Skip
//   - Multicast: Share
//   - Time: RealScheduler and VirtualScheduler behind the Scheduler interface
//
// Step-by-step verification of streams lives in the verify subpackage.
package fluxz

import "math"

// Unbounded is the demand sentinel meaning "emit everything you have".
// Requested demand saturates at Unbounded.
const Unbounded int64 = math.MaxInt64

// Publisher is a description of a stream of signals. It may be subscribed
// to zero or more times; cold publishers re-run their production for each
// subscription, hot publishers share one production run.
type Publisher[T any] interface {
	// Subscribe attaches a Subscriber. The Subscriber receives OnSubscribe
	// exactly once with the Subscription that controls demand.
	Subscribe(sub Subscriber[T])
}

// Subscriber consumes the signals of a Publisher.
// Signals to a single Subscriber are always delivered serially and at most
// one of OnError or OnComplete is ever called.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(value T)
	OnError(err error)
	OnComplete()
}

// Subscription is the per-subscriber handle for demand and cancellation.
type Subscription interface {
	// Request adds n to the outstanding demand. n must be positive; a
	// non-positive request terminates the subscription with ErrInvalidDemand.
	Request(n int64)

	// Cancel stops delivery and releases upstream resources. It is idempotent.
	Cancel()
}

// addDemand adds n to current, saturating at Unbounded.
func addDemand(current, n int64) int64 {
	if current == Unbounded || n >= Unbounded-current {
		return Unbounded
	}
	return current + n
}
