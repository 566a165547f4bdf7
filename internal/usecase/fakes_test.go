package usecase

import (
	"context"
	"sync"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"

	"github.com/stretchr/testify/mock"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	sent   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, sent: map[string]int{}}
}

func (m *countingMetrics) RecordMessageSent(backend, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend]++
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) Errors(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *countingMetrics) Sent(backend string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[backend]
}

func (m *countingMetrics) RecordLastPrice(string, float64)      {}
func (m *countingMetrics) RecordLatency(string, float64)        {}
func (m *countingMetrics) RecordBuckets(domrepo.Timeframe, int) {}

// gatedHistory blocks each symbol's fetch until release is called for it.
type gatedHistory struct {
	mu     sync.Mutex
	gates  map[string]chan struct{}
	trades map[string][]models.Trade
	err    error
}

func newGatedHistory() *gatedHistory {
	return &gatedHistory{gates: map[string]chan struct{}{}, trades: map[string][]models.Trade{}}
}

func (h *gatedHistory) gate(symbol string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[symbol]
	if !ok {
		g = make(chan struct{})
		h.gates[symbol] = g
	}
	return g
}

func (h *gatedHistory) release(symbol string) { close(h.gate(symbol)) }

func (h *gatedHistory) RecentTrades(ctx context.Context, ticker string, _ time.Duration) ([]models.Trade, error) {
	select {
	case <-h.gate(ticker):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]models.Trade(nil), h.trades[ticker]...), nil
}

type mockStorage struct{ mock.Mock }

func (m *mockStorage) Init(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStorage) Store(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockStorage) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	return m.Called(ctx, trades).Error(0)
}
func (m *mockStorage) Health(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStorage) Close() error                     { return m.Called().Error(0) }

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, t *models.Trade) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockPublisher) PublishBatch(ctx context.Context, trades []*models.Trade) error {
	return m.Called(ctx, trades).Error(0)
}
func (m *mockPublisher) Close() error { return m.Called().Error(0) }
