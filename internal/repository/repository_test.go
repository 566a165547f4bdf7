package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/pkg/cache"
	pkgkafka "EduX/pkg/kafka"
	"EduX/pkg/logger"
	"EduX/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMsg struct {
	topic string
	key   string
	value []byte
}

type fakeWriter struct {
	mu     sync.Mutex
	sent   []sentMsg
	err    error
	closed bool
}

func (w *fakeWriter) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	if w.err != nil {
		return w.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, sentMsg{topic: topic, key: string(key), value: b})
	return nil
}

func (w *fakeWriter) PublishBatch(ctx context.Context, topic string, msgs []pkgkafka.Message) error {
	for _, m := range msgs {
		if err := w.Publish(ctx, topic, m.Key, m.Value); err != nil {
			return err
		}
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []sentMsg {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sentMsg(nil), w.sent...)
}

type countingHistory struct {
	calls  int
	trades []models.Trade
	err    error
}

func (h *countingHistory) RecentTrades(_ context.Context, ticker string, _ time.Duration) ([]models.Trade, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	out := make([]models.Trade, len(h.trades))
	for i, t := range h.trades {
		t.Ticker = ticker
		out[i] = t
	}
	return out, nil
}

func TestDemoHistory_Shape(t *testing.T) {
	d := NewDemoHistory(42)
	now := time.UnixMilli(1_700_000_000_000)
	d.now = func() time.Time { return now }

	trades, err := d.RecentTrades(context.Background(), "AAPL", 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, trades, 721)

	assert.Equal(t, now.Add(-2*time.Hour).UnixMilli(), trades[0].EventTimeMs)
	assert.Equal(t, now.UnixMilli(), trades[len(trades)-1].EventTimeMs)
	for i, tr := range trades {
		assert.Equal(t, "AAPL", tr.Ticker)
		assert.Equal(t, tr.EventTimeMs, tr.TradeID)
		assert.GreaterOrEqual(t, tr.Price, 0.5)
		assert.LessOrEqual(t, tr.Price, 1.0)
		assert.InDelta(t, tr.Price, float64(int64(tr.Price*10_000+0.5))/10_000, 1e-12)
		assert.GreaterOrEqual(t, tr.Quantity, 10.0)
		assert.Less(t, tr.Quantity, 100.0)
		if i > 0 {
			assert.Equal(t, int64(10_000), tr.EventTimeMs-trades[i-1].EventTimeMs)
		}
	}
}

func TestDemoHistory_SeedIsDeterministic(t *testing.T) {
	at := func() time.Time { return time.UnixMilli(1_000_000_000) }
	a, b := NewDemoHistory(7), NewDemoHistory(7)
	a.now, b.now = at, at

	ta, err := a.RecentTrades(context.Background(), "X", time.Minute)
	require.NoError(t, err)
	tb, err := b.RecentTrades(context.Background(), "X", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ta, tb)
}

func TestDemoHistory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDemoHistory(1).RecentTrades(ctx, "X", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedHistory_HitsCacheWithinTTL(t *testing.T) {
	next := &countingHistory{trades: []models.Trade{{TradeID: 1, Price: 1, EventTimeMs: 5}}}
	c := cache.NewMemoryCache()
	defer c.Close()
	h := NewCachedHistory(next, c, time.Minute, logger.Nop())

	for i := 0; i < 3; i++ {
		got, err := h.RecentTrades(context.Background(), "AAPL", time.Hour)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "AAPL", got[0].Ticker)
	}
	assert.Equal(t, 1, next.calls)

	_, err := h.RecentTrades(context.Background(), "MSFT", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedHistory_ErrorsAreNotCached(t *testing.T) {
	next := &countingHistory{err: errors.New("down")}
	c := cache.NewMemoryCache()
	defer c.Close()
	h := NewCachedHistory(next, c, time.Minute, logger.Nop())

	_, err := h.RecentTrades(context.Background(), "AAPL", time.Hour)
	assert.Error(t, err)
	_, err = h.RecentTrades(context.Background(), "AAPL", time.Hour)
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedHistory_DisabledReturnsNext(t *testing.T) {
	next := &countingHistory{}
	assert.Same(t, next, NewCachedHistory(next, nil, time.Minute, logger.Nop()))
}

func TestKafkaPublisher_KeyedByTicker(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "trades")

	tr := &models.Trade{TradeID: 3, Ticker: "AAPL", Price: 0.8, Quantity: 2, EventTimeMs: 9}
	require.NoError(t, p.Publish(context.Background(), tr))
	require.NoError(t, p.PublishBatch(context.Background(), []*models.Trade{nil, tr}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))

	msgs := w.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "trades", msgs[0].topic)
	assert.Equal(t, "AAPL", msgs[0].key)
	assert.JSONEq(t, `{"trade_id":3,"ticker":"AAPL","price":0.8,"quantity":2,"create_timestamp":9}`, string(msgs[0].value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestCandlePublisher_PublishesUpdates(t *testing.T) {
	w := &fakeWriter{}
	p := NewCandlePublisher(w, "candles", 4, metrics.Nop{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	p.Load("AAPL", domrepo.TF1m, []models.Candle{{Time: 1}}, nil)
	p.Update("AAPL", domrepo.TF5m,
		models.Candle{Time: 300, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		models.VolumeBar{Time: 300, Value: 7, Direction: models.DirectionUp},
	)
	require.Eventually(t, func() bool { return len(w.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	msg := w.messages()[0]
	assert.Equal(t, "AAPL:5m", msg.key)
	var got CandleMessage
	require.NoError(t, json.Unmarshal(msg.value, &got))
	assert.Equal(t, CandleMessage{
		Symbol: "AAPL", Timeframe: "5m", Time: 300,
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 7, Direction: models.DirectionUp,
	}, got)
}

func TestCandlePublisher_DropsWhenFull(t *testing.T) {
	w := &fakeWriter{}
	p := NewCandlePublisher(w, "candles", 1, metrics.Nop{}, logger.Nop())

	p.Update("AAPL", domrepo.TF1m, models.Candle{Time: 60}, models.VolumeBar{})
	p.Update("AAPL", domrepo.TF1m, models.Candle{Time: 120}, models.VolumeBar{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].value), `"time":60`)
}

func TestTradeStore_Queries(t *testing.T) {
	s := &TradeStore{table: "trades"}
	assert.Equal(t, "INSERT INTO trades (trade_id, ticker, price, quantity, event_time)", s.insertQuery())
	assert.Contains(t, s.recentQuery(), "FROM trades FINAL")
	assert.Contains(t, s.recentQuery(), "ORDER BY event_time ASC")
}
