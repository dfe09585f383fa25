package clock

import "time"

// Clock is the time source consumed by the timer driver. Readings of
// time.Now carry a monotonic component, so differences between values
// returned here are immune to wall-clock adjustment.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// Real returns the system monotonic clock.
func Real() Clock {
	return realClock{}
}
