package app

import "time"

// TickSource starts a repeating tick. The returned stop func releases it.
type TickSource func() (<-chan time.Time, func())

// IntervalTicker ticks every interval of real time.
func IntervalTicker(interval time.Duration) TickSource {
	return func() (<-chan time.Time, func()) {
		t := time.NewTicker(interval)
		return t.C, t.Stop
	}
}
