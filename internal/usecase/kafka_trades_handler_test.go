package usecase

import (
	"context"
	"errors"
	"testing"

	"EduX/internal/domain/models"
	mid "EduX/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type procFunc func(context.Context, models.Event) error

func (f procFunc) Process(ctx context.Context, ev models.Event) error { return f(ctx, ev) }

func TestKafkaTradesHandler(t *testing.T) {
	var got []models.Event
	var downstream error
	m := newCountingMetrics()
	pipe := mid.NewRealtimePipeline(procFunc(func(_ context.Context, ev models.Event) error {
		got = append(got, ev)
		return downstream
	}), m)
	h := NewKafkaTradesHandler("trades", pipe, m)
	assert.Equal(t, "trades", h.Topic())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, []byte(`{"trade_id":1,"ticker":"aapl","price":0.8,"quantity":3,"create_timestamp":1700000000000}`)))
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Trade.Ticker)

	require.NoError(t, h.Handle(ctx, []byte(`nope`)))
	assert.Equal(t, 1, m.Errors("consumer_decode"))

	require.NoError(t, h.Handle(ctx, []byte(`{"trade_id":2,"ticker":"AAPL","price":-1,"create_timestamp":1}`)))
	assert.Equal(t, 1, m.Errors("pipeline_validate"))
	assert.Len(t, got, 1)

	downstream = errors.New("closed")
	assert.Error(t, h.Handle(ctx, []byte(`{"trade_id":3,"ticker":"AAPL","price":1,"create_timestamp":1}`)))
}
