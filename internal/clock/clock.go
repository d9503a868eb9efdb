package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services so evaluation and workflow timestamps
// are testable with a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func NewSystemClock() Clock {
	return SystemClock{}
}

// Module wires the system clock for the application.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
