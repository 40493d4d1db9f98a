package util

import "time"

// Clock abstracts the wall clock for order expiry: the engine stamps and
// sweeps ExpiresAt against Clock.Now, and the node's sweep loop ticks on
// Clock.After. Tests substitute a manual clock to drive expiry without
// sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
