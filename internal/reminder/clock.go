package reminder

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper blocks the calling goroutine. Waits are not cancellable.
type Sleeper interface {
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemSleeper struct{}

func (systemSleeper) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// SystemSleeper returns a Sleeper backed by time.Sleep.
func SystemSleeper() Sleeper { return systemSleeper{} }
