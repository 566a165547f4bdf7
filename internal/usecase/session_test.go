package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadRecorder struct {
	loads   []string
	updates int
}

func (r *loadRecorder) Load(symbol string, tf domrepo.Timeframe, _ []models.Candle, _ []models.VolumeBar) {
	r.loads = append(r.loads, symbol+":"+string(tf))
}

func (r *loadRecorder) Update(string, domrepo.Timeframe, models.Candle, models.VolumeBar) {
	r.updates++
}

func startSession(t *testing.T, h domrepo.HistoryStore, sink *loadRecorder) (*MarketSession, *countingMetrics, context.Context) {
	t.Helper()
	m := newCountingMetrics()
	s := NewMarketSession(SessionConfig{
		Symbols:   []string{"aapl", "MSFT", "TSLA"},
		Timeframe: domrepo.TF1m,
	}, h, sink, m, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, m, ctx
}

func waitSeeded(t *testing.T, s *MarketSession, ctx context.Context) SessionState {
	t.Helper()
	var st SessionState
	require.Eventually(t, func() bool {
		var err error
		st, err = s.State(ctx)
		return err == nil && !st.Seeding
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func trade(id int64, ticker string, price, qty float64, ts int64) models.Trade {
	return models.Trade{TradeID: id, Ticker: ticker, Price: price, Quantity: qty, EventTimeMs: ts}
}

func TestSession_SeedSortsAndDedupes(t *testing.T) {
	h := newGatedHistory()
	h.trades["AAPL"] = []models.Trade{
		trade(3, "AAPL", 9, 2, 59_000),
		trade(1, "AAPL", 10, 5, 0),
		trade(2, "AAPL", 12, 3, 30_000),
		trade(2, "AAPL", 12, 3, 30_000),
	}
	h.release("AAPL")
	s, _, ctx := startSession(t, h, &loadRecorder{})

	require.NoError(t, s.SelectSymbol(ctx, "aapl"))
	st := waitSeeded(t, s, ctx)
	assert.Equal(t, "AAPL", st.Symbol)
	assert.Equal(t, 1, st.Buckets["1m"])

	series, err := s.Candles(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, series.Candles, 1)
	c := series.Candles[0]
	assert.Equal(t, models.Candle{BucketStartMs: 0, Time: 0, Open: 10, High: 12, Low: 9, Close: 9}, c)
	assert.Equal(t, 10.0, series.Volumes[0].Value)
	assert.Equal(t, models.DirectionDown, series.Volumes[0].Direction)
}

func TestSession_LiveTradesQueuedDuringSeed(t *testing.T) {
	h := newGatedHistory()
	h.trades["AAPL"] = []models.Trade{trade(1, "AAPL", 10, 1, 0)}
	sink := &loadRecorder{}
	s, _, ctx := startSession(t, h, sink)

	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))
	ok, err := s.HandleTrade(ctx, trade(5, "AAPL", 11, 2, 61_000))
	require.NoError(t, err)
	assert.True(t, ok)
	// also present in history window: applied once
	ok, err = s.HandleTrade(ctx, trade(1, "AAPL", 10, 1, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.Seeding)
	assert.Equal(t, 2, st.Queued)
	assert.Zero(t, st.Buckets["1m"])
	assert.Zero(t, sink.updates)

	h.release("AAPL")
	st = waitSeeded(t, s, ctx)
	assert.Equal(t, 2, st.Buckets["1m"])
	assert.Zero(t, st.Queued)

	series, err := s.Candles(ctx, domrepo.TF1m, 0)
	require.NoError(t, err)
	require.Len(t, series.Volumes, 2)
	assert.Equal(t, 1.0, series.Volumes[0].Value)
	assert.Equal(t, 2.0, series.Volumes[1].Value)
}

func TestSession_StaleSeedDiscarded(t *testing.T) {
	h := newGatedHistory()
	h.trades["AAPL"] = []models.Trade{trade(1, "AAPL", 100, 1, 0)}
	h.trades["MSFT"] = []models.Trade{trade(7, "MSFT", 1, 1, 0)}
	sink := &loadRecorder{}
	s, m, ctx := startSession(t, h, sink)

	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))
	require.NoError(t, s.SelectSymbol(ctx, "MSFT"))

	h.release("AAPL")
	require.Eventually(t, func() bool { return m.Errors("seed_stale") == 1 }, 2*time.Second, 5*time.Millisecond)

	st, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", st.Symbol)
	assert.Equal(t, uint64(2), st.Generation)
	assert.True(t, st.Seeding)
	assert.Zero(t, st.Buckets["1m"])

	h.release("MSFT")
	waitSeeded(t, s, ctx)
	series, err := s.Candles(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, series.Candles, 1)
	assert.Equal(t, 1.0, series.Candles[0].Open)
	assert.Equal(t, "MSFT", series.Symbol)
}

func TestSession_FailedFetchStartsEmpty(t *testing.T) {
	h := newGatedHistory()
	h.err = errors.New("boom")
	s, m, ctx := startSession(t, h, &loadRecorder{})

	require.NoError(t, s.SelectSymbol(ctx, "TSLA"))
	_, err := s.HandleTrade(ctx, trade(1, "TSLA", 5, 1, 1_000))
	require.NoError(t, err)
	h.release("TSLA")

	st := waitSeeded(t, s, ctx)
	assert.Equal(t, 1, m.Errors("history_fetch"))
	assert.Equal(t, 1, st.Buckets["1m"])
}

func TestSession_LiveTradeFlow(t *testing.T) {
	h := newGatedHistory()
	h.release("AAPL")
	sink := &loadRecorder{}
	s, m, ctx := startSession(t, h, sink)

	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))
	waitSeeded(t, s, ctx)

	ok, err := s.HandleTrade(ctx, trade(1, "aapl", 10, 1, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HandleTrade(ctx, trade(1, "AAPL", 10, 1, 0))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Errors("duplicate"))

	ok, err = s.HandleTrade(ctx, trade(2, "MSFT", 99, 1, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, sink.updates)
	st, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.LastPrice)

	series, err := s.Candles(ctx, domrepo.TF1d, 0)
	require.NoError(t, err)
	require.Len(t, series.Volumes, 1)
	assert.Equal(t, 1.0, series.Volumes[0].Value)
}

func TestSession_RecentTradesNewestFirst(t *testing.T) {
	h := newGatedHistory()
	h.release("AAPL")
	s, _, ctx := startSession(t, h, &loadRecorder{})
	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))
	waitSeeded(t, s, ctx)

	for i := int64(1); i <= 15; i++ {
		_, err := s.HandleTrade(ctx, trade(i, "AAPL", float64(i), 1, i*1000))
		require.NoError(t, err)
	}
	recent, err := s.RecentTrades(ctx)
	require.NoError(t, err)
	require.Len(t, recent, RecentTradesLimit)
	assert.Equal(t, int64(15), recent[0].TradeID)
	assert.Equal(t, int64(6), recent[9].TradeID)
}

func TestSession_OrderBookFilteredAndReset(t *testing.T) {
	h := newGatedHistory()
	h.release("AAPL")
	s, _, ctx := startSession(t, h, &loadRecorder{})
	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))

	ok, err := s.HandleBook(ctx, models.OrderBookSnapshot{Ticker: "MSFT", Bids: []models.Level{{Price: 1}}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HandleBook(ctx, models.OrderBookSnapshot{
		Ticker: "AAPL",
		Bids:   []models.Level{{Price: 1, Quantity: 1}, {Price: 2, Quantity: 1}},
		Asks:   []models.Level{{Price: 4, Quantity: 1}, {Price: 3, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	book, err := s.OrderBook(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, book.Bids[0].Price)
	assert.Equal(t, 3.0, book.Asks[0].Price)

	require.NoError(t, s.SelectSymbol(ctx, "MSFT"))
	book, err = s.OrderBook(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, book.Bids)
	assert.Empty(t, book.Asks)
}

func TestSession_SetTimeframe(t *testing.T) {
	h := newGatedHistory()
	h.trades["AAPL"] = []models.Trade{trade(1, "AAPL", 1, 1, 0), trade(2, "AAPL", 1, 1, 300_000)}
	h.release("AAPL")
	sink := &loadRecorder{}
	s, _, ctx := startSession(t, h, sink)
	require.NoError(t, s.SelectSymbol(ctx, "AAPL"))
	waitSeeded(t, s, ctx)

	require.NoError(t, s.SetTimeframe(ctx, domrepo.TF5m))
	err := s.SetTimeframe(ctx, "7m")
	assert.ErrorIs(t, err, domrepo.ErrInvalidTimeframe)

	st, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, domrepo.TF5m, st.Timeframe)
	assert.Equal(t, "AAPL:5m", sink.loads[len(sink.loads)-1])

	series, err := s.Candles(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, series.Candles, 1)
	assert.Equal(t, int64(300), series.Candles[0].Time)
}

func TestSession_UnknownSymbol(t *testing.T) {
	s, _, ctx := startSession(t, newGatedHistory(), &loadRecorder{})
	assert.ErrorIs(t, s.SelectSymbol(ctx, "DOGE"), ErrUnknownSymbol)
	assert.ErrorIs(t, s.SelectSymbol(ctx, " "), ErrUnknownSymbol)
}

func TestSession_ClosedAfterRunExits(t *testing.T) {
	s := NewMarketSession(SessionConfig{}, newGatedHistory(), nil, newCountingMetrics(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	cancel()
	<-done
	_, err := s.State(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
