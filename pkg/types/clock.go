package types

import "time"

// Clock returns the current instant. Services take one so tests can control ordering.
type Clock func() time.Time

// SystemClock returns UTC wall time truncated to the precision Postgres stores.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
