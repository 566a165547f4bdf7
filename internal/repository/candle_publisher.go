package repository

import (
	"context"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/internal/services/candles"
	"EduX/pkg/logger"
)

// CandleMessage is the record published for every live bar change.
type CandleMessage struct {
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Time      int64            `json:"time"`
	Open      float64          `json:"open"`
	High      float64          `json:"high"`
	Low       float64          `json:"low"`
	Close     float64          `json:"close"`
	Volume    float64          `json:"volume"`
	Direction models.Direction `json:"direction"`
}

// CandlePublisher is a candles.Sink that forwards live updates to Kafka.
// Update never blocks the caller; when the buffer is full the update is dropped.
type CandlePublisher struct {
	producer topicWriter
	topic    string
	ch       chan CandleMessage
	metrics  domrepo.Metrics
	log      *logger.Logger
}

var _ candles.Sink = (*CandlePublisher)(nil)

// NewCandlePublisher creates a publisher with the given buffer size.
func NewCandlePublisher(producer topicWriter, topic string, buffer int, metrics domrepo.Metrics, log *logger.Logger) *CandlePublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &CandlePublisher{
		producer: producer,
		topic:    topic,
		ch:       make(chan CandleMessage, buffer),
		metrics:  metrics,
		log:      log,
	}
}

// Load is a no-op: consumers rebuild series from the update stream.
func (p *CandlePublisher) Load(string, domrepo.Timeframe, []models.Candle, []models.VolumeBar) {}

func (p *CandlePublisher) Update(symbol string, tf domrepo.Timeframe, c models.Candle, v models.VolumeBar) {
	msg := CandleMessage{
		Symbol:    symbol,
		Timeframe: tf.String(),
		Time:      c.Time,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    v.Value,
		Direction: v.Direction,
	}
	select {
	case p.ch <- msg:
	default:
		p.metrics.RecordError("candle_publish_drop")
	}
}

// Run publishes buffered updates until ctx is done, then drains what is left.
func (p *CandlePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case msg := <-p.ch:
			p.publish(ctx, msg)
		}
	}
}

func (p *CandlePublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-p.ch:
			p.publish(ctx, msg)
		default:
			return
		}
	}
}

func (p *CandlePublisher) publish(ctx context.Context, msg CandleMessage) {
	start := time.Now()
	key := []byte(msg.Symbol + ":" + msg.Timeframe)
	if err := p.producer.Publish(ctx, p.topic, key, msg); err != nil {
		p.metrics.RecordError("candle_publish")
		p.log.Warn("candle publish failed",
			logger.String("symbol", msg.Symbol),
			logger.String("tf", msg.Timeframe),
			logger.Error(err),
		)
		return
	}
	p.metrics.RecordMessageSent("kafka_candles", msg.Symbol)
	p.metrics.RecordLatency("candle_publish", time.Since(start).Seconds())
}
