// Package feed is a callback-style price producer and its fluxz bridge.
//
// A Feeder publishes a new price to every registered listener once per
// period. It knows nothing about streams; Prices adapts it into a
// fluxz.Publisher by registering one listener per subscription.
package feed

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zoobzio/fluxz"
)

// DefaultPeriod is how often a Feeder publishes unless WithPeriod says otherwise.
const DefaultPeriod = time.Second

// Listener receives every published price.
type Listener func(price decimal.Decimal)

// PriceSource produces the next price.
type PriceSource func() decimal.Decimal

// RandomPrice returns a random price between 0.00 and 99.99.
func RandomPrice() decimal.Decimal {
	return decimal.New(rand.Int64N(10000), -2)
}

// Option configures a Feeder.
type Option func(*Feeder)

// WithScheduler sets the scheduler that drives publishing.
// The default is fluxz.DefaultScheduler().
func WithScheduler(s fluxz.Scheduler) Option {
	return func(f *Feeder) {
		if s != nil {
			f.sched = s
		}
	}
}

// WithPeriod sets the time between two prices.
func WithPeriod(d time.Duration) Option {
	return func(f *Feeder) {
		if d > 0 {
			f.period = d
		}
	}
}

// WithPriceSource replaces RandomPrice.
func WithPriceSource(source PriceSource) Option {
	return func(f *Feeder) {
		if source != nil {
			f.source = source
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feeder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

type registration struct {
	fn Listener
	id uuid.UUID
}

// Feeder generates prices and notifies its listeners.
type Feeder struct {
	sched     fluxz.Scheduler
	task      fluxz.Task
	source    PriceSource
	logger    *slog.Logger
	listeners []registration
	mu        sync.Mutex
	publishMu sync.Mutex
	period    time.Duration
	published atomic.Int64
}

// New creates a stopped Feeder.
//
// Example:
//
//	feeder := feed.New(feed.WithPeriod(500 * time.Millisecond))
//	feeder.AddListener(func(p decimal.Decimal) { fmt.Println(p.StringFixed(2)) })
//	feeder.Start()
//	defer feeder.Stop()
func New(opts ...Option) *Feeder {
	f := &Feeder{
		sched:  fluxz.DefaultScheduler(),
		period: DefaultPeriod,
		source: RandomPrice,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins publishing, the first price one period from now.
// Calling Start on a running Feeder does nothing.
func (f *Feeder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.task != nil {
		return
	}
	f.task = f.sched.SchedulePeriodic(f.period, f.publish)
	f.logger.Debug("feeder started", "period", f.period)
}

// Stop halts publishing. Listeners stay registered.
func (f *Feeder) Stop() {
	f.mu.Lock()
	task := f.task
	f.task = nil
	f.mu.Unlock()

	if task != nil {
		task.Cancel()
		f.logger.Debug("feeder stopped")
	}
}

// AddListener registers fn for every future price and returns its handle.
func (f *Feeder) AddListener(fn Listener) uuid.UUID {
	id := uuid.New()
	f.mu.Lock()
	f.listeners = append(f.listeners, registration{id: id, fn: fn})
	f.mu.Unlock()
	return id
}

// RemoveListener unregisters the listener with handle id, reporting
// whether it was registered. It is safe to call from inside a listener.
func (f *Feeder) RemoveListener(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.listeners {
		if r.id == id {
			f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns the number of registered listeners.
func (f *Feeder) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Published returns how many prices have been published.
func (f *Feeder) Published() int64 {
	return f.published.Load()
}

// Publish produces one price and delivers it to every listener now.
// Deliveries of consecutive prices never interleave.
func (f *Feeder) Publish() decimal.Decimal {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	price := f.source()
	f.mu.Lock()
	listeners := append([]registration(nil), f.listeners...)
	f.mu.Unlock()

	for _, r := range listeners {
		r.fn(price)
	}
	f.published.Add(1)
	f.logger.Debug("price published", "price", price.StringFixed(2), "listeners", len(listeners))
	return price
}

func (f *Feeder) publish() {
	f.Publish()
}
