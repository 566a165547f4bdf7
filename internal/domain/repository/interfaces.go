package repository

import (
	"context"
	"time"

	"EduX/internal/domain/models"
)

// MarketStream is a live source of trades and order book snapshots.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Event, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher forwards accepted live trades to a downstream topic.
type Publisher interface {
	Publish(ctx context.Context, t *models.Trade) error
	PublishBatch(ctx context.Context, trades []*models.Trade) error
	Close() error
}

// Storage archives accepted live trades.
type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Trade) error
	StoreBatch(ctx context.Context, trades []*models.Trade) error
	Health(ctx context.Context) error // ping
	Close() error
}

// HistoryStore returns the recent trade window used to seed a fresh aggregator.
// Results are ordered by event time ascending.
type HistoryStore interface {
	RecentTrades(ctx context.Context, ticker string, window time.Duration) ([]models.Trade, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordBuckets(tf Timeframe, n int)
}
