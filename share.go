package fluxz

import (
	"log/slog"
	"sync"
)

// Share multicasts one subscription to its source among any number of
// subscribers. The first subscriber connects to the source; the source is
// cancelled when the last subscriber leaves. A subscriber that joins late
// only sees signals emitted after it joined.
//
// The upstream is requested Unbounded, so a subscriber that has no
// outstanding demand when a value arrives is terminated with ErrOverflow
// instead of slowing the others down. After the source terminates the next
// subscriber starts a fresh connection.
type Share[T any] struct {
	source Publisher[T]
	conn   *shareConnection[T]
	logger *slog.Logger
	name   string
	mu     sync.Mutex
}

// ShareOption configures a Share.
type ShareOption func(*shareConfig)

type shareConfig struct {
	logger *slog.Logger
}

// WithShareLogger sets the logger for connect and disconnect events.
func WithShareLogger(logger *slog.Logger) ShareOption {
	return func(c *shareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewShare creates a hot, reference-counted view of source.
//
// When to use:
//   - Several consumers of one expensive or side-effecting source
//   - Fanning a live feed out without subscribing to it once per consumer
//
// Example:
//
//	shared := fluxz.NewShare[decimal.Decimal](feed.Prices(feeder))
//	fluxz.Subscribe(shared, logPrice, nil, nil)
//	fluxz.Subscribe(shared, recordPrice, nil, nil)
func NewShare[T any](source Publisher[T], opts ...ShareOption) *Share[T] {
	cfg := shareConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Share[T]{
		source: source,
		logger: cfg.logger,
		name:   "share",
	}
}

func (s *Share[T]) Subscribe(sub Subscriber[T]) {
	s.mu.Lock()
	m := &shareMember[T]{out: newSerializer(sub)}
	connect := false
	if s.conn == nil || !s.conn.join(m) {
		s.conn = &shareConnection[T]{
			share:   s,
			members: make(map[*shareMember[T]]struct{}),
		}
		s.conn.join(m)
		connect = true
	}
	conn := s.conn
	s.mu.Unlock()

	sub.OnSubscribe(m)
	if connect {
		s.logger.Debug("share connecting", "source", nameOf(s.source))
		s.source.Subscribe(conn)
	}
}

func (s *Share[T]) Name() string {
	return s.name
}

// Subscribers returns the number of subscribers of the live connection.
func (s *Share[T]) Subscribers() int {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return len(conn.members)
}

// detach forgets conn so the next subscriber connects again.
func (s *Share[T]) detach(conn *shareConnection[T]) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

type shareConnection[T any] struct {
	share    *Share[T]
	members  map[*shareMember[T]]struct{}
	upstream deferredSubscription
	mu       sync.Mutex
	done     bool
}

// join adds m unless the connection has already ended.
func (c *shareConnection[T]) join(m *shareMember[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	m.conn = c
	c.members[m] = struct{}{}
	return true
}

func (c *shareConnection[T]) OnSubscribe(s Subscription) {
	if c.upstream.set(s) {
		s.Request(Unbounded)
	}
}

func (c *shareConnection[T]) snapshot() []*shareMember[T] {
	members := make([]*shareMember[T], 0, len(c.members))
	for m := range c.members {
		members = append(members, m)
	}
	return members
}

func (c *shareConnection[T]) OnNext(v T) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	members := c.snapshot()
	c.mu.Unlock()

	for _, m := range members {
		m.next(v)
	}
}

func (c *shareConnection[T]) OnError(err error) {
	for _, m := range c.finish() {
		m.out.fail(err)
	}
}

func (c *shareConnection[T]) OnComplete() {
	for _, m := range c.finish() {
		m.out.complete()
	}
}

func (c *shareConnection[T]) finish() []*shareMember[T] {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	members := c.snapshot()
	c.members = nil
	c.mu.Unlock()

	c.share.detach(c)
	c.share.logger.Debug("share source terminated", "subscribers", len(members))
	return members
}

// leave removes m and disconnects from the source once nobody is left.
func (c *shareConnection[T]) leave(m *shareMember[T]) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	delete(c.members, m)
	last := len(c.members) == 0
	if last {
		c.done = true
	}
	c.mu.Unlock()

	if last {
		c.share.detach(c)
		c.upstream.Cancel()
		c.share.logger.Debug("share disconnected")
	}
}

type shareMember[T any] struct {
	conn   *shareConnection[T]
	out    *serializer[T]
	mu     sync.Mutex
	demand int64
}

func (m *shareMember[T]) next(v T) {
	m.mu.Lock()
	if m.demand == 0 {
		m.mu.Unlock()
		m.conn.leave(m)
		m.out.fail(overflow(m.conn.share.name, v))
		return
	}
	if m.demand != Unbounded {
		m.demand--
	}
	m.mu.Unlock()
	m.out.next(v)
}

func (m *shareMember[T]) Request(n int64) {
	if n <= 0 {
		m.conn.leave(m)
		m.out.fail(ErrInvalidDemand)
		return
	}
	m.mu.Lock()
	m.demand = addDemand(m.demand, n)
	m.mu.Unlock()
}

func (m *shareMember[T]) Cancel() {
	m.out.stop()
	m.conn.leave(m)
}

// nameOf returns pub's Name if it has one.
func nameOf(pub any) string {
	if n, ok := pub.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "anonymous"
}
