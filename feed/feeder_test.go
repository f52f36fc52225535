package feed

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/fluxz"
	"github.com/zoobzio/fluxz/verify"
)

// fixedPrices returns a PriceSource cycling through prices.
func fixedPrices(prices ...string) PriceSource {
	i := 0
	return func() decimal.Decimal {
		p := decimal.RequireFromString(prices[i%len(prices)])
		i++
		return p
	}
}

func TestFeeder_PublishesEveryPeriod(t *testing.T) {
	vs := fluxz.NewVirtualScheduler()
	feeder := New(
		WithScheduler(vs),
		WithPeriod(time.Second),
		WithPriceSource(fixedPrices("10.50", "11.25", "9.75")),
	)

	var got []string
	feeder.AddListener(func(p decimal.Decimal) { got = append(got, p.StringFixed(2)) })

	feeder.Start()
	vs.Advance(500 * time.Millisecond)
	assert.Empty(t, got, "no price before the first period")

	vs.Advance(2500 * time.Millisecond)
	assert.Equal(t, []string{"10.50", "11.25", "9.75"}, got)
	assert.Equal(t, int64(3), feeder.Published())

	feeder.Stop()
	assert.Equal(t, 0, vs.Pending())
	vs.Advance(10 * time.Second)
	assert.Len(t, got, 3, "no price after Stop")
}

func TestFeeder_StartIsIdempotent(t *testing.T) {
	vs := fluxz.NewVirtualScheduler()
	feeder := New(WithScheduler(vs))

	feeder.Start()
	feeder.Start()

	assert.Equal(t, 1, vs.Pending())
	feeder.Stop()
	feeder.Stop()
	assert.Equal(t, 0, vs.Pending())
}

func TestFeeder_Listeners(t *testing.T) {
	feeder := New(WithPriceSource(fixedPrices("1.00")))

	var first, second int
	a := feeder.AddListener(func(decimal.Decimal) { first++ })
	feeder.AddListener(func(decimal.Decimal) { second++ })
	require.Equal(t, 2, feeder.Listeners())

	feeder.Publish()
	assert.True(t, feeder.RemoveListener(a))
	assert.False(t, feeder.RemoveListener(a), "second removal reports false")
	feeder.Publish()

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, feeder.Listeners())
}

func TestFeeder_ListenerRemovesItself(t *testing.T) {
	feeder := New(WithPriceSource(fixedPrices("1.00")))

	calls := 0
	var id uuid.UUID
	id = feeder.AddListener(func(decimal.Decimal) {
		calls++
		feeder.RemoveListener(id)
	})

	feeder.Publish()
	feeder.Publish()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, feeder.Listeners())
}

func TestRandomPrice(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := RandomPrice()
		assert.True(t, p.GreaterThanOrEqual(decimal.Zero), "price %v below zero", p)
		assert.True(t, p.LessThan(decimal.NewFromInt(100)), "price %v not below 100", p)
		assert.LessOrEqual(t, -p.Exponent(), int32(2), "price %v has more than two decimals", p)
	}
}

func TestPrices_Bridge(t *testing.T) {
	verify.WithVirtualTime(func(vs *fluxz.VirtualScheduler) fluxz.Publisher[string] {
		feeder := New(
			WithScheduler(vs),
			WithPriceSource(fixedPrices("42.00", "43.50")),
		)
		feeder.Start()
		prices := fluxz.NewTake(Prices(feeder), 2)
		return fluxz.NewMapper(prices, func(p decimal.Decimal) (string, error) {
			return p.StringFixed(2), nil
		})
	}).
		ExpectSubscription().
		ExpectNoEvent(time.Second).
		ExpectNext("42.00").
		ThenAwait(time.Second).
		ExpectNext("43.50").
		ExpectComplete().
		VerifyT(t)
}

func TestPrices_CancelRemovesListener(t *testing.T) {
	vs := fluxz.NewVirtualScheduler()
	feeder := New(WithScheduler(vs), WithPriceSource(fixedPrices("5.00")))
	feeder.Start()
	defer feeder.Stop()

	var got []decimal.Decimal
	sub := fluxz.Subscribe(Prices(feeder), func(p decimal.Decimal) { got = append(got, p) }, nil, nil)
	require.Equal(t, 1, feeder.Listeners())

	vs.Advance(3 * time.Second)
	assert.Len(t, got, 3)

	sub.Cancel()
	assert.Equal(t, 0, feeder.Listeners())

	vs.Advance(3 * time.Second)
	assert.Len(t, got, 3)
}

func TestPrices_EachSubscriptionOwnsAListener(t *testing.T) {
	vs := fluxz.NewVirtualScheduler()
	feeder := New(WithScheduler(vs), WithPriceSource(fixedPrices("5.00")))
	prices := Prices(feeder)

	a := fluxz.Subscribe(prices, nil, nil, nil)
	b := fluxz.Subscribe(prices, nil, nil, nil)
	assert.Equal(t, 2, feeder.Listeners())

	a.Cancel()
	b.Cancel()
	assert.Equal(t, 0, feeder.Listeners())
}
