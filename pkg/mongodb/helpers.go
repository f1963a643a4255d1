package mongodb

import (
	"time"
)

// Now returns the current time in UTC truncated to the millisecond BSON stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
