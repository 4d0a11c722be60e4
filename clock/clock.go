// Package clock abstracts time for the heartbeat services so that threshold
// arithmetic can be driven deterministically in tests.
package clock

import "time"

// Clock provides the current time. The ledger derives chain time from it and
// the monitor uses it for wall-clock alert cooldowns.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the system wall clock.
type System struct{}

// Now returns the current system time.
func (System) Now() time.Time {
	return time.Now()
}
