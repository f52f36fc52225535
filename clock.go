package fluxz

import "github.com/zoobzio/clockz"

// Clock is the time source behind RealScheduler.
type Clock = clockz.Clock

// ClockTimer is a pending single-shot callback created by Clock.AfterFunc.
type ClockTimer = clockz.Timer

// RealClock is the default Clock using standard time.
var RealClock Clock = clockz.RealClock
