package clock

import "time"

// Clock supplies record-creation time. Business time always comes from the caller.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}
