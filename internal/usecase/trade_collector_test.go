package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"EduX/internal/domain/models"
	mid "EduX/internal/middleware"
	"EduX/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream serves one batch of events per Read, then fails the connection.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]models.Event
	reconnects int
	connected  bool
	// eager reports the failure together with the batch
	eager bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context) error { return nil }

func (s *scriptedStream) Read(ctx context.Context) (<-chan models.Event, <-chan error) {
	s.mu.Lock()
	var batch []models.Event
	if len(s.batches) > 0 {
		batch = s.batches[0]
		s.batches = s.batches[1:]
	}
	s.mu.Unlock()

	evs := make(chan models.Event, len(batch))
	errs := make(chan error, 1)
	for _, ev := range batch {
		evs <- ev
	}
	if batch == nil {
		go func() { <-ctx.Done() }()
		return evs, errs
	}
	close(evs)
	if s.eager {
		errs <- errors.New("connection reset")
		return evs, errs
	}
	go func() {
		// let the events drain before reporting the drop
		time.Sleep(20 * time.Millisecond)
		errs <- errors.New("connection reset")
	}()
	return evs, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestTradeCollector_ReconnectsAndForwards(t *testing.T) {
	tr := func(id int64) models.Event {
		return models.TradeEvent(&models.Trade{TradeID: id, Ticker: "AAPL", Price: 1, Quantity: 1, EventTimeMs: 1})
	}
	stream := &scriptedStream{batches: [][]models.Event{
		{tr(1), models.TradeEvent(&models.Trade{Ticker: "AAPL"})},
		{tr(2)},
	}}

	var mu sync.Mutex
	var ids []int64
	pipe := mid.NewRealtimePipeline(procFunc(func(_ context.Context, ev models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, ev.Trade.TradeID)
		return nil
	}), newCountingMetrics())

	m := newCountingMetrics()
	c := NewTradeCollector(stream, pipe, m, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsConnected())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 2 && stream.reconnectCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{1, 2}, ids)
	mu.Unlock()
	assert.GreaterOrEqual(t, m.Errors("stream"), 2)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.IsConnected())
}

func TestTradeCollector_ForwardsBufferedTradesBeforeReconnect(t *testing.T) {
	batch := make([]models.Event, 0, 50)
	for i := int64(1); i <= 50; i++ {
		batch = append(batch, models.TradeEvent(&models.Trade{TradeID: i, Ticker: "AAPL", Price: 1, Quantity: 1, EventTimeMs: i}))
	}
	stream := &scriptedStream{batches: [][]models.Event{batch}, eager: true}

	var mu sync.Mutex
	var ids []int64
	pipe := mid.NewRealtimePipeline(procFunc(func(_ context.Context, ev models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, ev.Trade.TradeID)
		return nil
	}), newCountingMetrics())

	c := NewTradeCollector(stream, pipe, newCountingMetrics(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool { return stream.reconnectCount() >= 1 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 50)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}
