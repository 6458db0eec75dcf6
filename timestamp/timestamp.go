// Package timestamp is the unix second timestamp used in events and session
// records.
package timestamp

import (
	"strconv"
	"time"
)

// T is a convenience type for UNIX 64 bit timestamps of 1 second
// precision.
type T int64

// Now returns the current UNIX timestamp of the current second.
func Now() T { return T(time.Now().Unix()) }

// FromUnix converts from a standard int64 unix timestamp.
func FromUnix(t int64) T { return T(t) }

// FromTime returns a T from a time.Time
func FromTime(t time.Time) T { return T(t.Unix()) }

// I64 returns the timestamp as an int64.
func (t T) I64() int64 { return int64(t) }

// U64 returns the timestamp as uint64.
func (t T) U64() uint64 { return uint64(t) }

// Time converts a timestamp into a time.Time.
func (t T) Time() time.Time { return time.Unix(int64(t), 0) }

// Marshal appends the decimal form of the timestamp to dst.
func (t T) Marshal(dst []byte) []byte { return strconv.AppendInt(dst, int64(t), 10) }

// Clock returns the current time, it is swapped out in tests.
type Clock func() T

// System is the Clock backed by the system time.
var System Clock = Now
