package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"EduX/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs one reader per registered topic. Messages of a topic are
// handled one at a time in fetch order; offsets are committed after handling.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *logger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "edux",
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start launches one consuming goroutine per registered topic.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	for topic, h := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.wg.Add(1)
		go c.consume(ctx, r, h)
	}
	c.log.Info("kafka consumer started", logger.Int("topics", len(c.handlers)), logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop stops consuming and closes readers, waiting at most until ctx is done.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, r messageReader, h MessageHandler) {
	defer c.wg.Done()
	topic := h.Topic()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}

		start := time.Now()
		herr := c.handle(ctx, h, msg)
		consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
		if herr != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka message failed", logger.String("topic", topic), logger.Int64("offset", msg.Offset), logger.Error(herr))
			// the reader has already moved past msg, so it is not committed
			// until it is parked in the DLQ
			if !c.deadLetter(ctx, topic, msg) {
				return
			}
		}
		if err := c.commit(ctx, r, msg); err != nil {
			c.log.Warn("kafka commit failed", logger.String("topic", topic), logger.Error(err))
		}
	}
}

// handle runs the handler with bounded retries. Panics are turned into errors.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.cfg.RetryMax+1; attempt++ {
		err = safeHandle(ctx, h, msg.Value)
		if err == nil {
			consumerMessages.WithLabelValues(msg.Topic, "ok").Inc()
			return nil
		}
		if attempt <= c.cfg.RetryMax && !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			break
		}
	}
	consumerMessages.WithLabelValues(msg.Topic, "error").Inc()
	return err
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

// deadLetter retries toDLQ until it succeeds. It reports false once ctx is done.
func (c *Consumer) deadLetter(ctx context.Context, topic string, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		if c.toDLQ(ctx, topic, msg) {
			return true
		}
		consumerMessages.WithLabelValues(topic, "dlq_retry").Inc()
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return false
		}
	}
}

// toDLQ reports whether the failed message may be committed.
func (c *Consumer) toDLQ(ctx context.Context, topic string, msg kafka.Message) bool {
	if c.dlq == nil {
		// nothing else to do with it; skip to avoid a poison loop
		return true
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(ctx context.Context, r messageReader, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		if !sleepCtx(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			return ctx.Err()
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerMessages      *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "edux_kafka_consumer_messages_total", Help: "Messages handled, by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "edux_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
