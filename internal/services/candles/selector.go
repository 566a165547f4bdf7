package candles

import (
	"fmt"
	"sort"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
)

// Selector exposes one timeframe of an Aggregator as the displayed series.
// All timeframes stay warm in the aggregator; switching only re-reads.
type Selector struct {
	agg    *Aggregator
	sink   Sink
	symbol string
	active domrepo.Timeframe

	candles []models.Candle
	volumes []models.VolumeBar
}

// NewSelector binds a selector to agg with tf active. A nil sink discards output.
func NewSelector(agg *Aggregator, sink Sink, tf domrepo.Timeframe) *Selector {
	if sink == nil {
		sink = nopSink{}
	}
	if !domrepo.IsValidTimeframe(tf) {
		tf = domrepo.DefaultTimeframe()
	}
	return &Selector{agg: agg, sink: sink, active: tf}
}

// Active returns the displayed timeframe.
func (s *Selector) Active() domrepo.Timeframe { return s.active }

// Symbol returns the symbol passed to the sink.
func (s *Selector) Symbol() string { return s.symbol }

// Materialize returns the series of tf sorted ascending by bucket start.
// It never mutates the aggregator or the displayed series.
func (s *Selector) Materialize(tf domrepo.Timeframe) ([]models.Candle, []models.VolumeBar) {
	cs, vs := s.agg.Snapshot(tf)
	sort.Slice(cs, func(i, j int) bool { return cs[i].BucketStartMs < cs[j].BucketStartMs })
	sort.Slice(vs, func(i, j int) bool { return vs[i].BucketStartMs < vs[j].BucketStartMs })
	return cs, vs
}

// SetActive switches the displayed timeframe and pushes a full load to the sink.
func (s *Selector) SetActive(tf domrepo.Timeframe) error {
	if !domrepo.IsValidTimeframe(tf) {
		return fmt.Errorf("%w: %q", domrepo.ErrInvalidTimeframe, string(tf))
	}
	s.active = tf
	s.Refresh()
	return nil
}

// Refresh re-materializes the active timeframe and pushes a full load.
func (s *Selector) Refresh() {
	s.candles, s.volumes = s.Materialize(s.active)
	s.sink.Load(s.symbol, s.active, cloneCandles(s.candles), cloneVolumes(s.volumes))
}

// Rebind points the selector at a fresh aggregator for symbol and reloads.
func (s *Selector) Rebind(symbol string, agg *Aggregator) {
	s.symbol = symbol
	s.agg = agg
	s.Refresh()
}

// ApplyLiveUpdate patches the displayed series with one bucket of tf.
// Updates for a timeframe other than the active one are ignored and reported false.
func (s *Selector) ApplyLiveUpdate(tf domrepo.Timeframe, c models.Candle, v models.VolumeBar) bool {
	if tf != s.active {
		return false
	}
	s.candles = upsertCandle(s.candles, c)
	s.volumes = upsertVolume(s.volumes, v)
	s.sink.Update(s.symbol, tf, c, v)
	return true
}

// Series returns copies of the displayed series.
func (s *Selector) Series() ([]models.Candle, []models.VolumeBar) {
	return cloneCandles(s.candles), cloneVolumes(s.volumes)
}

func upsertCandle(cs []models.Candle, c models.Candle) []models.Candle {
	n := len(cs)
	if n > 0 && cs[n-1].BucketStartMs == c.BucketStartMs {
		cs[n-1] = c
		return cs
	}
	if n == 0 || cs[n-1].BucketStartMs < c.BucketStartMs {
		return append(cs, c)
	}
	i := sort.Search(n, func(i int) bool { return cs[i].BucketStartMs >= c.BucketStartMs })
	if i < n && cs[i].BucketStartMs == c.BucketStartMs {
		cs[i] = c
		return cs
	}
	cs = append(cs, models.Candle{})
	copy(cs[i+1:], cs[i:])
	cs[i] = c
	return cs
}

func upsertVolume(vs []models.VolumeBar, v models.VolumeBar) []models.VolumeBar {
	n := len(vs)
	if n > 0 && vs[n-1].BucketStartMs == v.BucketStartMs {
		vs[n-1] = v
		return vs
	}
	if n == 0 || vs[n-1].BucketStartMs < v.BucketStartMs {
		return append(vs, v)
	}
	i := sort.Search(n, func(i int) bool { return vs[i].BucketStartMs >= v.BucketStartMs })
	if i < n && vs[i].BucketStartMs == v.BucketStartMs {
		vs[i] = v
		return vs
	}
	vs = append(vs, models.VolumeBar{})
	copy(vs[i+1:], vs[i:])
	vs[i] = v
	return vs
}

func cloneCandles(cs []models.Candle) []models.Candle {
	out := make([]models.Candle, len(cs))
	copy(out, cs)
	return out
}

func cloneVolumes(vs []models.VolumeBar) []models.VolumeBar {
	out := make([]models.VolumeBar, len(vs))
	copy(out, vs)
	return out
}
