package task

import "time"

// Clock abstracts time.Now so age-based behaviour can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}
