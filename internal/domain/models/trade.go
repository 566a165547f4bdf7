package models

// Trade is a single execution delivered by the market data feed or the history store.
type Trade struct {
	TradeID     int64   `json:"trade_id"`
	Ticker      string  `json:"ticker"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	EventTimeMs int64   `json:"create_timestamp"` // epoch ms
}

// Candle is an OHLC record for one timeframe bucket.
// Time is the bucket start in seconds, the unit display clients expect.
type Candle struct {
	BucketStartMs int64   `json:"-"`
	Time          int64   `json:"time"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
}

// Direction tells whether a bucket closed at or above its open.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// DirectionOf derives the volume direction from a candle's current state.
func DirectionOf(c Candle) Direction {
	if c.Close >= c.Open {
		return DirectionUp
	}
	return DirectionDown
}

// Color returns the histogram colour used by chart clients.
func (d Direction) Color() string {
	if d == DirectionDown {
		return "rgba(239,83,80,0.5)"
	}
	return "rgba(38,166,154,0.5)"
}

// VolumeBar accumulates traded quantity for the same bucket as a Candle.
type VolumeBar struct {
	BucketStartMs int64     `json:"-"`
	Time          int64     `json:"time"`
	Value         float64   `json:"value"`
	Direction     Direction `json:"direction"`
}
