package feed

import (
	"github.com/shopspring/decimal"

	"github.com/zoobzio/fluxz"
)

// Prices exposes the prices of f as a stream. Every subscription registers
// its own listener, removed again when the subscription is cancelled.
//
// Example:
//
//	fluxz.Subscribe(feed.Prices(feeder),
//		func(p decimal.Decimal) { fmt.Println(p.StringFixed(2)) },
//		nil, nil)
func Prices(f *Feeder, opts ...fluxz.CreateOption) fluxz.Publisher[decimal.Decimal] {
	return fluxz.Create(func(e fluxz.Emitter[decimal.Decimal]) {
		id := f.AddListener(e.Next)
		e.OnDispose(func() { f.RemoveListener(id) })
	}, opts...)
}
