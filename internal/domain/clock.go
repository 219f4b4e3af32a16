package domain

import "time"

// Clock supplies the current time for deadline comparisons. Operations never
// read the wall clock directly so tests can pin time exactly.
type Clock interface {
	// Now returns the current Unix time in seconds.
	Now() int64
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// FixedClock always returns the same instant. Intended for tests.
type FixedClock int64

func (c FixedClock) Now() int64 {
	return int64(c)
}
