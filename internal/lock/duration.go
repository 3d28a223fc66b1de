package lock

import (
	"fmt"
	"time"
)

// Duration is the lock length a user picks when enabling recovery mode.
type Duration string

const (
	Duration24h       Duration = "24h"
	Duration72h       Duration = "72h"
	Duration7d        Duration = "7d"
	Duration30d       Duration = "30d"
	DurationPermanent Duration = "permanent"
)

var durationLengths = map[Duration]time.Duration{
	Duration24h: 24 * time.Hour,
	Duration72h: 72 * time.Hour,
	Duration7d:  7 * 24 * time.Hour,
	Duration30d: 30 * 24 * time.Hour,
}

// ParseDuration accepts exactly the five supported values.
func ParseDuration(s string) (Duration, error) {
	d := Duration(s)
	if d == DurationPermanent {
		return d, nil
	}
	if _, ok := durationLengths[d]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: unsupported lock duration %q", ErrInvalidArgument, s)
}

// Length returns the wall-clock length; ok is false for permanent.
func (d Duration) Length() (time.Duration, bool) {
	l, ok := durationLengths[d]
	return l, ok
}

func (d Duration) String() string { return string(d) }

// ExpiryOf returns nil for permanent locks, now+length otherwise.
func ExpiryOf(d Duration, now time.Time) *time.Time {
	l, ok := d.Length()
	if !ok {
		return nil
	}
	t := now.Add(l)
	return &t
}
