package candles

import (
	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
)

// series holds every touched bucket of one timeframe, keyed by bucket start (ms).
type series struct {
	candles map[int64]*models.Candle
	volumes map[int64]*models.VolumeBar
}

func newSeries() series {
	return series{
		candles: make(map[int64]*models.Candle),
		volumes: make(map[int64]*models.VolumeBar),
	}
}

// Aggregator maintains candles and volume bars for all timeframes at once.
// It is not safe for concurrent use; the owning session serialises access.
// Inputs are not validated and trades are not de-duplicated here.
type Aggregator struct {
	state [domrepo.NumTimeframes]series
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

// Ingest routes one trade into its bucket on every timeframe, in declared order.
func (a *Aggregator) Ingest(price, quantity float64, eventTimeMs int64) {
	for i, tf := range domrepo.Timeframes {
		bucket := tf.BucketStartMs(eventTimeMs)
		s := &a.state[i]

		c, ok := s.candles[bucket]
		if !ok {
			c = &models.Candle{
				BucketStartMs: bucket,
				Time:          bucket / 1000,
				Open:          price,
				High:          price,
				Low:           price,
				Close:         price,
			}
			s.candles[bucket] = c
		} else {
			if price > c.High {
				c.High = price
			}
			if price < c.Low {
				c.Low = price
			}
			// last writer wins, regardless of event time order
			c.Close = price
		}

		v, ok := s.volumes[bucket]
		if !ok {
			v = &models.VolumeBar{BucketStartMs: bucket, Time: bucket / 1000}
			s.volumes[bucket] = v
		}
		v.Value += quantity
		v.Direction = models.DirectionOf(*c)
	}
}

// IngestTrade is Ingest for a trade record.
func (a *Aggregator) IngestTrade(t models.Trade) {
	a.Ingest(t.Price, t.Quantity, t.EventTimeMs)
}

// Seed replays trades in the given order. Callers sort and de-duplicate beforehand.
func (a *Aggregator) Seed(trades []models.Trade) {
	for _, t := range trades {
		a.IngestTrade(t)
	}
}

// Reset discards all buckets of all timeframes.
func (a *Aggregator) Reset() {
	for i := range a.state {
		a.state[i] = newSeries()
	}
}

// At returns copies of the candle and volume bar of one bucket.
func (a *Aggregator) At(tf domrepo.Timeframe, bucketStartMs int64) (models.Candle, models.VolumeBar, bool) {
	i := tf.Index()
	if i < 0 {
		return models.Candle{}, models.VolumeBar{}, false
	}
	c, ok := a.state[i].candles[bucketStartMs]
	if !ok {
		return models.Candle{}, models.VolumeBar{}, false
	}
	v := a.state[i].volumes[bucketStartMs]
	return *c, *v, true
}

// Snapshot copies all buckets of a timeframe, in no particular order.
func (a *Aggregator) Snapshot(tf domrepo.Timeframe) ([]models.Candle, []models.VolumeBar) {
	i := tf.Index()
	if i < 0 {
		return []models.Candle{}, []models.VolumeBar{}
	}
	s := a.state[i]
	cs := make([]models.Candle, 0, len(s.candles))
	vs := make([]models.VolumeBar, 0, len(s.volumes))
	for _, c := range s.candles {
		cs = append(cs, *c)
	}
	for _, v := range s.volumes {
		vs = append(vs, *v)
	}
	return cs, vs
}

// Len returns the number of buckets held for tf.
func (a *Aggregator) Len(tf domrepo.Timeframe) int {
	i := tf.Index()
	if i < 0 {
		return 0
	}
	return len(a.state[i].candles)
}
