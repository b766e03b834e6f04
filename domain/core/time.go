package core

import (
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// Sub returns the duration t-u
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Time(t).Sub(time.Time(u))
}

// Domain-specific time types
type (
	// Watermark marks the upper bound of event time a persisted statistic
	// snapshot has absorbed. Replays must start strictly after it.
	Watermark Timestamp
)

// NewWatermark creates a watermark from time.Time
func NewWatermark(t time.Time) Watermark { return Watermark(NewTimestamp(t)) }

// Time conversion
func (w Watermark) Time() time.Time { return Timestamp(w).Time() }

// AdmitsEvent reports whether an event at ts may be replayed on top of
// state summarized by this watermark. Equality is rejected: the snapshot
// may already contain the event itself.
func (w Watermark) AdmitsEvent(ts Timestamp) bool {
	return w.Time().Before(ts.Time())
}

// ValidityWindow bounds acceptable event timestamps. Events outside the
// window are rejected rather than folded into statistics.
type ValidityWindow struct {
	Min Timestamp
	Max Timestamp
}

// Contains reports whether ts falls inside the window (inclusive bounds).
// Zero bounds are open on that side.
func (w ValidityWindow) Contains(ts Timestamp) bool {
	if !w.Min.IsZero() && ts.Before(w.Min) {
		return false
	}
	if !w.Max.IsZero() && ts.After(w.Max) {
		return false
	}
	return true
}

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

// JSON marshaling for Watermark
func (w Watermark) MarshalJSON() ([]byte, error) {
	return Timestamp(w).MarshalJSON()
}

func (w *Watermark) UnmarshalJSON(data []byte) error {
	var t Timestamp
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*w = Watermark(t)
	return nil
}

// String representations
func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }
func (w Watermark) String() string { return w.Time().Format(time.RFC3339) }
