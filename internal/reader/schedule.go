package reader

import "time"

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The Reader keeps at most one pending timer.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WallClock schedules on real timers.
var WallClock Scheduler = realScheduler{}

// TokenDurationMs is the display time in milliseconds for a token of the
// given weight: 60000 / wpm * weight.
func TokenDurationMs(wpm int, weight float64) float64 {
	return 60000 / float64(wpm) * weight
}

// TokenDuration is TokenDurationMs as a time.Duration.
func TokenDuration(wpm int, weight float64) time.Duration {
	return time.Duration(TokenDurationMs(wpm, weight) * float64(time.Millisecond))
}
