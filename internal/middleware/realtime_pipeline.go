package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/pkg/util"

	"golang.org/x/time/rate"
)

var ErrInvalidEvent = errors.New("invalid event")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ev models.Event) error
}

// RealtimePipeline sits between the market stream and the processor.
// It validates and normalises events, and throttles order book snapshots per
// ticker. Trades are never throttled; dropping one would corrupt volume.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	bookRPS  float64
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	// optional format transform hook
	transform func(models.Event) models.Event
}

type PipelineOption func(*RealtimePipeline)

// WithBookRate caps order book snapshots per ticker per second. Zero disables the cap.
func WithBookRate(rps float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if rps >= 0 {
			p.bookRPS = rps
		}
	}
}

// WithTransform sets a hook applied after validation; its output is validated again.
func WithTransform(fn func(models.Event) models.Event) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, normalises and forwards one event.
// Invalid events are counted and rejected with ErrInvalidEvent; they never reach the processor.
func (p *RealtimePipeline) Process(ctx context.Context, ev models.Event) error {
	start := time.Now()
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	ev = normalize(ev)
	if p.transform != nil {
		ev = p.transform(ev)
		if err := validateEvent(ev); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if ev.Kind == models.EventOrderBook && !p.allow(ev.Book.Ticker) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) allow(ticker string) bool {
	if p.bookRPS <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[ticker]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.bookRPS), 1)
		p.limiters[ticker] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

func normalize(ev models.Event) models.Event {
	switch ev.Kind {
	case models.EventTrade:
		t := *ev.Trade
		t.Ticker = util.NormalizeSymbol(t.Ticker)
		return models.TradeEvent(&t)
	case models.EventOrderBook:
		b := *ev.Book
		b.Ticker = util.NormalizeSymbol(b.Ticker)
		return models.BookEvent(&b)
	}
	return ev
}

func validateEvent(ev models.Event) error {
	switch ev.Kind {
	case models.EventTrade:
		return validateTrade(ev.Trade)
	case models.EventOrderBook:
		return validateBook(ev.Book)
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidEvent, ev.Kind)
	}
}

func validateTrade(t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("%w: trade nil", ErrInvalidEvent)
	}
	if strings.TrimSpace(t.Ticker) == "" {
		return fmt.Errorf("%w: ticker empty", ErrInvalidEvent)
	}
	if t.EventTimeMs <= 0 {
		return fmt.Errorf("%w: timestamp invalid", ErrInvalidEvent)
	}
	if !finite(t.Price) || t.Price <= 0 {
		return fmt.Errorf("%w: price invalid", ErrInvalidEvent)
	}
	if !finite(t.Quantity) || t.Quantity < 0 {
		return fmt.Errorf("%w: quantity invalid", ErrInvalidEvent)
	}
	return nil
}

func validateBook(b *models.OrderBookSnapshot) error {
	if b == nil {
		return fmt.Errorf("%w: book nil", ErrInvalidEvent)
	}
	if strings.TrimSpace(b.Ticker) == "" {
		return fmt.Errorf("%w: ticker empty", ErrInvalidEvent)
	}
	for _, side := range [][]models.Level{b.Bids, b.Asks} {
		for _, l := range side {
			if !finite(l.Price) || !finite(l.Quantity) {
				return fmt.Errorf("%w: level not finite", ErrInvalidEvent)
			}
		}
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
