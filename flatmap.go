package fluxz

import (
	"errors"
)

// errNilPublisher is wrapped in a ProducerError when a FlatMap function
// returns no publisher and no error.
var errNilPublisher = errors.New("fluxz: flatMap function returned a nil publisher")

// FlatMap expands each upstream value into an inner publisher and merges the
// inner streams into one. Inner streams may interleave; each keeps its own
// order. The result completes after the upstream and every inner stream have
// completed. The first error from the upstream, an inner stream or the
// mapping function terminates everything.
type FlatMap[In, Out any] struct {
	source Publisher[In]
	fn     func(In) (Publisher[Out], error)
	name   string
}

// NewFlatMap creates an operator that maps each value to a publisher and
// flattens the results.
//
// When to use:
//   - Expanding a value into many (words into letters)
//   - Starting a sub-stream per event, such as a lookup or a timer
//   - Flattening nested publishers
//
// Example:
//
//	// Every letter of every word
//	letters := fluxz.NewFlatMap(words, func(w string) (fluxz.Publisher[string], error) {
//		return fluxz.FromSlice(strings.Split(w, "")), nil
//	})
//
// At most 256 inner publishers are active at once; further upstream values
// are requested as inner publishers complete.
func NewFlatMap[In, Out any](source Publisher[In], fn func(In) (Publisher[Out], error)) *FlatMap[In, Out] {
	return &FlatMap[In, Out]{
		source: source,
		fn:     fn,
		name:   "flatMap",
	}
}

func (f *FlatMap[In, Out]) Subscribe(sub Subscriber[Out]) {
	fs := &flatMapSubscriber[In, Out]{
		core: newMergeCore(sub, defaultPrefetch),
		fn:   f.fn,
		name: f.name,
	}
	fs.core.onCancel = fs.cancelUpstream
	fs.core.onInnerDone = fs.innerDone
	f.source.Subscribe(fs)
}

func (f *FlatMap[In, Out]) Name() string {
	return f.name
}

type flatMapSubscriber[In, Out any] struct {
	core     *mergeCore[Out]
	upstream Subscription
	fn       func(In) (Publisher[Out], error)
	name     string
	done     bool
}

func (f *flatMapSubscriber[In, Out]) OnSubscribe(s Subscription) {
	f.upstream = s
	f.core.downstream.OnSubscribe(f.core)
	s.Request(defaultConcurrency)
}

func (f *flatMapSubscriber[In, Out]) OnNext(v In) {
	if f.done {
		return
	}
	inner, err := invoke(f.fn, v)
	if err == nil && inner == nil {
		err = errNilPublisher
	}
	if err != nil {
		f.done = true
		f.upstream.Cancel()
		f.core.fail(NewProducerError(f.name, v, err))
		return
	}

	in := f.core.addInner()
	if in == nil {
		return
	}
	inner.Subscribe(in)
}

func (f *flatMapSubscriber[In, Out]) OnError(err error) {
	if f.done {
		return
	}
	f.done = true
	f.core.fail(err)
}

func (f *flatMapSubscriber[In, Out]) OnComplete() {
	if f.done {
		return
	}
	f.done = true
	f.core.seal()
}

func (f *flatMapSubscriber[In, Out]) cancelUpstream() {
	f.upstream.Cancel()
}

// innerDone replaces a completed inner publisher with the next upstream value.
func (f *flatMapSubscriber[In, Out]) innerDone() {
	f.upstream.Request(1)
}
