package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframes_DeclaredOrder(t *testing.T) {
	want := []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}
	assert.Equal(t, want, Timeframes[:])
	for i, tf := range Timeframes {
		assert.Equal(t, i, tf.Index())
	}
	assert.Equal(t, 24*time.Hour, TF1d.Duration())
	assert.Equal(t, int64(300_000), TF5m.DurationMs())
}

func TestBucketStartMs(t *testing.T) {
	assert.Equal(t, int64(0), TF1m.BucketStartMs(59_999))
	assert.Equal(t, int64(60_000), TF1m.BucketStartMs(60_000))
	assert.Equal(t, int64(0), TF5m.BucketStartMs(299_999))
	assert.Equal(t, int64(-60_000), TF1m.BucketStartMs(-1))
	assert.Equal(t, int64(14_400_000), TF4h.BucketStartMs(14_400_001))
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("15m")
	require.NoError(t, err)
	assert.Equal(t, TF15m, tf)

	_, err = ParseTimeframe("2h")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)

	assert.Equal(t, TF1m, NormalizeTimeframe(""))
	assert.Equal(t, TF1m, NormalizeTimeframe("bogus"))
	assert.Equal(t, TF4h, NormalizeTimeframe("4h"))
	assert.Zero(t, Timeframe("bogus").Duration())
}
