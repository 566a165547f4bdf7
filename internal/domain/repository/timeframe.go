package repository

import (
	"errors"
	"fmt"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// ErrInvalidTimeframe is returned when a string does not name a supported timeframe.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Timeframes lists every supported timeframe in declared order.
// The order is fixed; aggregators index their state by it.
var Timeframes = [...]Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}

// NumTimeframes is the size of the fixed timeframe set.
const NumTimeframes = len(Timeframes)

var durations = [NumTimeframes]time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// Index returns the position of tf in Timeframes, or -1.
func (tf Timeframe) Index() int {
	for i, t := range Timeframes {
		if t == tf {
			return i
		}
	}
	return -1
}

// Duration returns the bucket width, or 0 for an unsupported timeframe.
func (tf Timeframe) Duration() time.Duration {
	if i := tf.Index(); i >= 0 {
		return durations[i]
	}
	return 0
}

// DurationMs returns the bucket width in milliseconds.
func (tf Timeframe) DurationMs() int64 { return tf.Duration().Milliseconds() }

// BucketStartMs floors an epoch-ms timestamp to the start of its bucket.
func (tf Timeframe) BucketStartMs(eventTimeMs int64) int64 {
	d := tf.DurationMs()
	if d <= 0 {
		return eventTimeMs
	}
	b := (eventTimeMs / d) * d
	if eventTimeMs < 0 && b != eventTimeMs {
		b -= d
	}
	return b
}

func (tf Timeframe) String() string { return string(tf) }

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool { return tf.Index() >= 0 }

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe is the strict variant of NormalizeTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	return tf, nil
}
