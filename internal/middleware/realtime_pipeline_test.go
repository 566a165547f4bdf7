package middleware

import (
	"context"
	"errors"
	"math"
	"testing"

	"EduX/internal/domain/models"
	"EduX/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureProc struct {
	events []models.Event
	err    error
}

func (c *captureProc) Process(_ context.Context, ev models.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func validTrade() *models.Trade {
	return &models.Trade{TradeID: 1, Ticker: " aapl", Price: 0.75, Quantity: 10, EventTimeMs: 1_700_000_000_000}
}

func TestPipeline_ForwardsAndNormalises(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{})

	in := validTrade()
	require.NoError(t, p.Process(context.Background(), models.TradeEvent(in)))
	require.Len(t, proc.events, 1)
	assert.Equal(t, "AAPL", proc.events[0].Trade.Ticker)
	assert.Equal(t, " aapl", in.Ticker, "input must not be mutated")
}

func TestPipeline_RejectsMalformed(t *testing.T) {
	cases := map[string]func(*models.Trade){
		"empty ticker":  func(t *models.Trade) { t.Ticker = "  " },
		"zero price":    func(t *models.Trade) { t.Price = 0 },
		"nan price":     func(t *models.Trade) { t.Price = math.NaN() },
		"inf price":     func(t *models.Trade) { t.Price = math.Inf(1) },
		"negative qty":  func(t *models.Trade) { t.Quantity = -1 },
		"nan qty":       func(t *models.Trade) { t.Quantity = math.NaN() },
		"zero time":     func(t *models.Trade) { t.EventTimeMs = 0 },
		"negative time": func(t *models.Trade) { t.EventTimeMs = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			proc := &captureProc{}
			p := NewRealtimePipeline(proc, metrics.Nop{})
			tr := validTrade()
			mutate(tr)
			err := p.Process(context.Background(), models.TradeEvent(tr))
			assert.ErrorIs(t, err, ErrInvalidEvent)
			assert.Empty(t, proc.events)
		})
	}

	proc := &captureProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{})
	assert.ErrorIs(t, p.Process(context.Background(), models.Event{}), ErrInvalidEvent)
	assert.ErrorIs(t, p.Process(context.Background(), models.TradeEvent(nil)), ErrInvalidEvent)
	assert.ErrorIs(t, p.Process(context.Background(), models.BookEvent(&models.OrderBookSnapshot{})), ErrInvalidEvent)
	assert.Empty(t, proc.events)
}

func TestPipeline_ZeroQuantityAllowed(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{})
	tr := validTrade()
	tr.Quantity = 0
	require.NoError(t, p.Process(context.Background(), models.TradeEvent(tr)))
	assert.Len(t, proc.events, 1)
}

func TestPipeline_ThrottlesBooksOnly(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithBookRate(0.001))
	book := &models.OrderBookSnapshot{Ticker: "AAPL"}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(context.Background(), models.BookEvent(book)))
		require.NoError(t, p.Process(context.Background(), models.TradeEvent(validTrade())))
	}
	books, trades := 0, 0
	for _, ev := range proc.events {
		switch ev.Kind {
		case models.EventOrderBook:
			books++
		case models.EventTrade:
			trades++
		}
	}
	assert.Equal(t, 1, books)
	assert.Equal(t, 3, trades)
}

func TestPipeline_DownstreamError(t *testing.T) {
	proc := &captureProc{err: errors.New("closed")}
	p := NewRealtimePipeline(proc, metrics.Nop{})
	err := p.Process(context.Background(), models.TradeEvent(validTrade()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline downstream")
}

func TestPipeline_Transform(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithTransform(func(ev models.Event) models.Event {
		if ev.Trade != nil {
			ev.Trade.Price = -1
		}
		return ev
	}))
	err := p.Process(context.Background(), models.TradeEvent(validTrade()))
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Empty(t, proc.events)
}
