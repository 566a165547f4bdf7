package usecase

import (
	"context"
	"errors"

	"EduX/internal/domain/models"
	drepo "EduX/internal/domain/repository"
	mid "EduX/internal/middleware"
	"EduX/pkg/logger"
)

// TradeCollector reads the market stream and pushes events through the pipeline.
type TradeCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, log *logger.Logger) *TradeCollector {
	return &TradeCollector{stream: stream, pipe: pipe, metrics: metrics, log: log}
}

// IsConnected returns true if the market stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects and begins consuming in the background.
func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// run re-reads after every reconnect until ctx is done.
func (c *TradeCollector) run(ctx context.Context) {
	for {
		evCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, evCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("market stream lost, reconnecting", logger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("reconnect failed", logger.Error(rerr))
		}
		c.log.Info("market stream reconnected")
	}
}

func (c *TradeCollector) consume(ctx context.Context, evCh <-chan models.Event, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				// events read before the failure are still owed to the session
				for ev := range evCh {
					c.forward(ctx, ev)
				}
				return err
			}
		case ev, ok := <-evCh:
			if !ok {
				return errors.New("market stream closed")
			}
			c.forward(ctx, ev)
		}
	}
}

func (c *TradeCollector) forward(ctx context.Context, ev models.Event) {
	if err := c.pipe.Process(ctx, ev); err != nil {
		if errors.Is(err, mid.ErrInvalidEvent) {
			c.log.Debug("event rejected", logger.String("ticker", ev.Ticker()), logger.Error(err))
		} else {
			c.log.Warn("event processing failed", logger.String("ticker", ev.Ticker()), logger.Error(err))
		}
	}
}

// Shutdown closes the stream.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
