// Package temporal converts heterogeneous date inputs to canonical instants
// and encodes instants as minute-granularity integer keys.
package temporal

import (
	"math"
	"time"
)

// Key is an instant encoded as whole minutes since 0001-01-01T00:00Z.
// Keys are non-negative and ordered like the instants they encode.
type Key uint32

// Supported calendar range. Year 8000 is well inside the uint32 minute
// range, which ends in the year 8167.
const (
	MinYear = 1
	MaxYear = 8000
)

var epoch = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// epochMinutes is the Unix time of the key epoch in minutes (negative).
var epochMinutes = epoch.Unix() / 60

// Encode returns the key for t, truncated to the minute. Instants outside
// the key range are clamped to its ends.
func Encode(t time.Time) Key {
	secs := t.Unix() - epoch.Unix()
	if secs < 0 {
		return 0
	}
	mins := secs / 60
	if mins > math.MaxUint32 {
		return math.MaxUint32
	}
	return Key(mins)
}

// Decode returns the UTC instant for k.
func Decode(k Key) time.Time {
	return time.Unix((int64(k)+epochMinutes)*60, 0).UTC()
}

// Time is Decode as a method.
func (k Key) Time() time.Time {
	return Decode(k)
}

func (k Key) String() string {
	return Decode(k).Format("2006-01-02T15:04Z")
}
