package repository

import (
	"context"
	"errors"
	"time"

	"EduX/internal/domain/models"
	"EduX/internal/domain/repository"
	"EduX/pkg/cache"
	"EduX/pkg/logger"
)

// CachedHistory fronts a HistoryStore with a short-lived cache so rapid
// symbol switching does not re-query the archive.
type CachedHistory struct {
	next  repository.HistoryStore
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedHistory wraps next. A nil cache disables caching.
func NewCachedHistory(next repository.HistoryStore, c cache.Service, ttl time.Duration, log *logger.Logger) repository.HistoryStore {
	if c == nil || ttl <= 0 {
		return next
	}
	return &CachedHistory{next: next, cache: c, ttl: ttl, log: log}
}

func (h *CachedHistory) RecentTrades(ctx context.Context, ticker string, window time.Duration) ([]models.Trade, error) {
	key := cache.Key("history", ticker, int64(window.Seconds()))

	var trades []models.Trade
	err := h.cache.Get(ctx, key, &trades)
	if err == nil {
		return trades, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		h.log.Warn("history cache read failed", logger.String("key", key), logger.Error(err))
	}

	trades, err = h.next.RecentTrades(ctx, ticker, window)
	if err != nil {
		return nil, err
	}
	if err := h.cache.Set(ctx, key, trades, h.ttl); err != nil {
		h.log.Warn("history cache write failed", logger.String("key", key), logger.Error(err))
	}
	return trades, nil
}
