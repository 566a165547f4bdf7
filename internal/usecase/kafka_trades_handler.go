package usecase

import (
	"context"
	"errors"
	"time"

	domrepo "EduX/internal/domain/repository"
	mid "EduX/internal/middleware"
	"EduX/internal/service/mdp"
	pkgkafka "EduX/pkg/kafka"
)

// KafkaTradesHandler feeds MDP-formatted messages from a Kafka topic into the pipeline.
// It is the alternative live source to the websocket stream.
type KafkaTradesHandler struct {
	topic   string
	pipe    *mid.RealtimePipeline
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, pipe *mid.RealtimePipeline, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

// Handle decodes one message. Undecodable or invalid messages are counted and
// acknowledged; only downstream failures are returned for retry.
func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	ev, ok := mdp.Decode(b)
	if !ok {
		h.metrics.RecordError("consumer_decode")
		return nil
	}
	if ev.Trade != nil && ev.Trade.EventTimeMs > 0 {
		h.metrics.RecordLatency("ingest_e2e", time.Since(time.UnixMilli(ev.Trade.EventTimeMs)).Seconds())
	}
	if err := h.pipe.Process(ctx, ev); err != nil {
		if errors.Is(err, mid.ErrInvalidEvent) {
			return nil
		}
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
