// Package system provides the wall clock used for event and submission timestamps.
package system

import "time"

// Clock implements poster.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to milliseconds so it survives a
// round trip through the JSON submission log unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
