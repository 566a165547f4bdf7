package candles

import (
	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
)

// Sink receives the displayed series of the active timeframe.
// Load replaces the whole series; Update appends or replaces the bar at the same time.
type Sink interface {
	Load(symbol string, tf domrepo.Timeframe, candles []models.Candle, volumes []models.VolumeBar)
	Update(symbol string, tf domrepo.Timeframe, candle models.Candle, volume models.VolumeBar)
}

// MultiSink fans out to every non-nil sink.
type MultiSink []Sink

func (m MultiSink) Load(symbol string, tf domrepo.Timeframe, candles []models.Candle, volumes []models.VolumeBar) {
	for _, s := range m {
		if s != nil {
			s.Load(symbol, tf, candles, volumes)
		}
	}
}

func (m MultiSink) Update(symbol string, tf domrepo.Timeframe, candle models.Candle, volume models.VolumeBar) {
	for _, s := range m {
		if s != nil {
			s.Update(symbol, tf, candle, volume)
		}
	}
}

type nopSink struct{}

func (nopSink) Load(string, domrepo.Timeframe, []models.Candle, []models.VolumeBar) {}
func (nopSink) Update(string, domrepo.Timeframe, models.Candle, models.VolumeBar)   {}
