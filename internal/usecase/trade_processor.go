package usecase

import (
	"context"
	"fmt"
	"time"

	"EduX/internal/domain/models"
	drepo "EduX/internal/domain/repository"
	"EduX/pkg/logger"
)

// Archive backends for accepted live trades.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// LiveHandler applies live events to the current market session.
type LiveHandler interface {
	HandleTrade(ctx context.Context, t models.Trade) (bool, error)
	HandleBook(ctx context.Context, b models.OrderBookSnapshot) (bool, error)
}

// TradeProcessor routes validated events to the session, then archives
// trades the session accepted to the configured backend.
type TradeProcessor struct {
	live    LiveHandler
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	batchSz int
	batchTO time.Duration
	batchCh chan *models.Trade
}

// NewTradeProcessor creates a new TradeProcessor instance.
func NewTradeProcessor(
	live LiveHandler,
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *TradeProcessor {
	if backend == "" {
		backend = BackendNone
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	p := &TradeProcessor{
		live:    live,
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
	if batchSz > 1 && backend != BackendNone {
		p.batchCh = make(chan *models.Trade, batchSz*4)
	}
	return p
}

// Run flushes batched archive writes until ctx is done. It returns at once
// when batching is disabled.
func (p *TradeProcessor) Run(ctx context.Context) {
	if p.batchCh == nil {
		return
	}
	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()
	buf := make([]*models.Trade, 0, p.batchSz)
	flush := func(fctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := p.ArchiveBatch(fctx, buf); err != nil {
			p.log.Warn("archive batch failed", logger.String("backend", p.backend), logger.Int("size", len(buf)), logger.Error(err))
		}
		buf = make([]*models.Trade, 0, p.batchSz)
	}
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for {
				select {
				case t := <-p.batchCh:
					buf = append(buf, t)
					continue
				default:
				}
				break
			}
			flush(fctx)
			cancel()
			return
		case t := <-p.batchCh:
			buf = append(buf, t)
			if len(buf) >= p.batchSz {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Process handles one event. Archive failures are logged and counted but do
// not fail the event; the candle state has already been updated.
func (p *TradeProcessor) Process(ctx context.Context, ev models.Event) error {
	switch ev.Kind {
	case models.EventTrade:
		if ev.Trade == nil {
			return fmt.Errorf("trade is nil")
		}
		return p.processTrade(ctx, *ev.Trade)
	case models.EventOrderBook:
		if ev.Book == nil {
			return fmt.Errorf("book is nil")
		}
		if _, err := p.live.HandleBook(ctx, *ev.Book); err != nil {
			return fmt.Errorf("apply book: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown event kind: %d", ev.Kind)
	}
}

func (p *TradeProcessor) processTrade(ctx context.Context, t models.Trade) error {
	p.metrics.RecordLastPrice(t.Ticker, t.Price)
	accepted, err := p.live.HandleTrade(ctx, t)
	if err != nil {
		return fmt.Errorf("apply trade: %w", err)
	}
	if !accepted {
		return nil
	}
	if p.batchCh != nil {
		select {
		case p.batchCh <- &t:
		default:
			p.metrics.RecordError("archive_buffer_full")
		}
		return nil
	}
	if err := p.archive(ctx, &t); err != nil {
		p.metrics.RecordError("archive")
		p.log.Warn("archive trade failed",
			logger.String("backend", p.backend),
			logger.String("ticker", t.Ticker),
			logger.Int64("trade_id", t.TradeID),
			logger.Error(err))
	}
	return nil
}

func (p *TradeProcessor) archive(ctx context.Context, t *models.Trade) error {
	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, t)
	case BackendClickHouse:
		err = p.store.Store(ctx, t)
	case BackendNone:
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		return fmt.Errorf("archive trade: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, t.Ticker)
	p.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

// ArchiveBatch archives several trades at once, bypassing the session.
func (p *TradeProcessor) ArchiveBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, trades)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, trades)
	case BackendNone:
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}

	for _, t := range trades {
		p.metrics.RecordMessageSent(p.backend, t.Ticker)
	}
	p.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *TradeProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
