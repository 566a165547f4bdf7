package repository

import (
	"context"
	"fmt"
	"time"

	"EduX/internal/domain/models"
	"EduX/internal/domain/repository"
	pkgkafka "EduX/pkg/kafka"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// TradesSchema creates the archive table. event_time carries millisecond precision
// so history reads return the exact create_timestamp the feed sent.
const TradesSchema = `
CREATE TABLE IF NOT EXISTS %s (
	trade_id    Int64,
	ticker      LowCardinality(String),
	price       Float64,
	quantity    Float64,
	event_time  DateTime64(3, 'UTC'),
	inserted_at DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMMDD(event_time)
ORDER BY (ticker, event_time, trade_id)
TTL toDateTime(event_time) + INTERVAL 7 DAY`

// chConn is the subset of driver.Conn the trade store uses.
type chConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
}

// TradeStore archives live trades in ClickHouse and serves the seeding window.
type TradeStore struct {
	conn  chConn
	table string
}

var (
	_ repository.Storage      = (*TradeStore)(nil)
	_ repository.HistoryStore = (*TradeStore)(nil)
)

// NewTradeStore creates a ClickHouse-backed trade store.
func NewTradeStore(conn driver.Conn, table string) *TradeStore {
	return &TradeStore{conn: conn, table: table}
}

func (s *TradeStore) Init(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(TradesSchema, s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *TradeStore) Store(ctx context.Context, t *models.Trade) error {
	return s.StoreBatch(ctx, []*models.Trade{t})
}

func (s *TradeStore) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, s.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		if t == nil {
			continue
		}
		err := batch.Append(
			t.TradeID,
			t.Ticker,
			t.Price,
			t.Quantity,
			time.UnixMilli(t.EventTimeMs).UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append trade %d: %w", t.TradeID, err)
		}
	}
	return batch.Send()
}

// RecentTrades returns the ticker's trades from the last window, oldest first.
func (s *TradeStore) RecentTrades(ctx context.Context, ticker string, window time.Duration) ([]models.Trade, error) {
	since := time.Now().Add(-window).UTC()
	rows, err := s.conn.Query(ctx, s.recentQuery(), ticker, since)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	out := make([]models.Trade, 0, 1024)
	for rows.Next() {
		var (
			t  models.Trade
			ts time.Time
		)
		if err := rows.Scan(&t.TradeID, &t.Ticker, &t.Price, &t.Quantity, &ts); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.EventTimeMs = ts.UnixMilli()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *TradeStore) Health(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *TradeStore) Close() error {
	return nil // connection owned by pkg/clickhouse
}

func (s *TradeStore) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (trade_id, ticker, price, quantity, event_time)", s.table)
}

func (s *TradeStore) recentQuery() string {
	return fmt.Sprintf(`
		SELECT trade_id, ticker, price, quantity, event_time
		FROM %s FINAL
		WHERE ticker = ? AND event_time >= ?
		ORDER BY event_time ASC, trade_id ASC`, s.table)
}

// topicWriter is satisfied by *pkgkafka.Producer.
type topicWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher implements Publisher for Kafka. Trades keep the feed's JSON shape
// so a kafka-sourced session can consume the topic directly.
type KafkaPublisher struct {
	producer topicWriter
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer topicWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Trade) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Ticker), t)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(trades))
	for _, t := range trades {
		if t == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Ticker), Value: t})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
