package usecase

import (
	"time"

	"glossvoice/internal/ports"
)

type realClock struct{}

// RealClock is the wall clock used outside tests.
func RealClock() ports.Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
