package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"EduX/internal/domain/models"
	domrepo "EduX/internal/domain/repository"
	"EduX/internal/services/candles"
	"EduX/internal/services/orderbook"
	"EduX/pkg/logger"
	"EduX/pkg/util"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrSessionClosed = errors.New("session closed")
)

// RecentTradesLimit is the number of trades kept for the recent-trades view.
const RecentTradesLimit = 10

// SessionConfig configures a MarketSession.
type SessionConfig struct {
	Symbols       []string
	InitialSymbol string
	Timeframe     domrepo.Timeframe
	HistoryWindow time.Duration
	FetchTimeout  time.Duration
	BookDepth     int
}

// SessionState is a point-in-time summary of the session.
type SessionState struct {
	Symbol     string            `json:"symbol"`
	Timeframe  domrepo.Timeframe `json:"timeframe"`
	Generation uint64            `json:"generation"`
	Seeding    bool              `json:"seeding"`
	Queued     int               `json:"queued"`
	LastPrice  float64           `json:"last_price"`
	Spread     float64           `json:"spread"`
	Buckets    map[string]int    `json:"buckets"`
}

// MarketSession owns the aggregator of the selected symbol.
// Every mutation runs on the goroutine executing Run; other goroutines
// submit commands and wait for their result.
type MarketSession struct {
	cfg     SessionConfig
	history domrepo.HistoryStore
	metrics domrepo.Metrics
	log     *logger.Logger

	cmds chan func(ctx context.Context)
	done chan struct{}

	// loop-owned state
	symbol    string
	gen       uint64
	agg       *candles.Aggregator
	sel       *candles.Selector
	book      *orderbook.Book
	seeding   bool
	queue     []models.Trade
	seen      map[int64]struct{}
	recent    []models.Trade
	lastPrice float64
}

// NewMarketSession creates a session. Run must be started before use.
func NewMarketSession(cfg SessionConfig, history domrepo.HistoryStore, sink candles.Sink, metrics domrepo.Metrics, log *logger.Logger) *MarketSession {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 2 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	cfg.Symbols = util.NormalizeSymbols(cfg.Symbols)
	agg := candles.NewAggregator()
	return &MarketSession{
		cfg:     cfg,
		history: history,
		metrics: metrics,
		log:     log,
		cmds:    make(chan func(ctx context.Context), 64),
		done:    make(chan struct{}),
		agg:     agg,
		sel:     candles.NewSelector(agg, sink, cfg.Timeframe),
		book:    orderbook.New(cfg.BookDepth),
		seen:    make(map[int64]struct{}),
	}
}

// Run selects the initial symbol and serves commands until ctx is cancelled.
func (s *MarketSession) Run(ctx context.Context) error {
	defer close(s.done)
	if s.cfg.InitialSymbol != "" {
		if err := s.selectSymbol(ctx, s.cfg.InitialSymbol); err != nil {
			return fmt.Errorf("initial symbol: %w", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.cmds:
			fn(ctx)
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *MarketSession) do(ctx context.Context, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		defer close(finished)
		fn(loopCtx)
	}
	select {
	case s.cmds <- wrapped:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// fn writes captured results, so it must finish before we return
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues fn on the loop without waiting. It gives up once the loop has exited.
func (s *MarketSession) post(fn func(ctx context.Context)) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// SelectSymbol discards all state and starts seeding symbol from history.
func (s *MarketSession) SelectSymbol(ctx context.Context, symbol string) error {
	var err error
	if derr := s.do(ctx, func(loopCtx context.Context) { err = s.selectSymbol(loopCtx, symbol) }); derr != nil {
		return derr
	}
	return err
}

// SetTimeframe switches the displayed timeframe.
func (s *MarketSession) SetTimeframe(ctx context.Context, tf domrepo.Timeframe) error {
	var err error
	if derr := s.do(ctx, func(context.Context) { err = s.sel.SetActive(tf) }); derr != nil {
		return derr
	}
	return err
}

// HandleTrade applies one live trade. accepted is false when the trade was
// filtered by ticker or dropped as a duplicate.
func (s *MarketSession) HandleTrade(ctx context.Context, t models.Trade) (accepted bool, err error) {
	err = s.do(ctx, func(context.Context) { accepted = s.onTrade(t) })
	return accepted, err
}

// HandleBook applies one order book snapshot.
func (s *MarketSession) HandleBook(ctx context.Context, b models.OrderBookSnapshot) (accepted bool, err error) {
	err = s.do(ctx, func(context.Context) {
		if !strings.EqualFold(b.Ticker, s.symbol) {
			return
		}
		s.book.Apply(b)
		accepted = true
	})
	return accepted, err
}

// CandleSeries is the materialized view of one timeframe.
type CandleSeries struct {
	Symbol    string             `json:"symbol"`
	Timeframe domrepo.Timeframe  `json:"timeframe"`
	Candles   []models.Candle    `json:"candles"`
	Volumes   []models.VolumeBar `json:"volumes"`
}

// Candles materializes tf, or the active timeframe when tf is empty.
// A positive limit keeps only the newest limit buckets.
func (s *MarketSession) Candles(ctx context.Context, tf domrepo.Timeframe, limit int) (*CandleSeries, error) {
	if tf != "" && !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("%w: %q", domrepo.ErrInvalidTimeframe, string(tf))
	}
	var out CandleSeries
	err := s.do(ctx, func(context.Context) {
		if tf == "" {
			tf = s.sel.Active()
		}
		cs, vs := s.sel.Materialize(tf)
		if limit > 0 && len(cs) > limit {
			cs = cs[len(cs)-limit:]
			vs = vs[len(vs)-limit:]
		}
		out = CandleSeries{Symbol: s.symbol, Timeframe: tf, Candles: cs, Volumes: vs}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderBook returns up to depth levels per side; depth <= 0 returns the full book.
func (s *MarketSession) OrderBook(ctx context.Context, depth int) (models.OrderBookSnapshot, error) {
	var out models.OrderBookSnapshot
	err := s.do(ctx, func(context.Context) {
		if depth <= 0 {
			out = s.book.Snapshot()
			return
		}
		out = s.book.Top(depth)
	})
	return out, err
}

// RecentTrades returns accepted live trades, newest first.
func (s *MarketSession) RecentTrades(ctx context.Context) ([]models.Trade, error) {
	var out []models.Trade
	err := s.do(ctx, func(context.Context) {
		out = append([]models.Trade{}, s.recent...)
	})
	return out, err
}

// State reports the session summary.
func (s *MarketSession) State(ctx context.Context) (SessionState, error) {
	var st SessionState
	err := s.do(ctx, func(context.Context) {
		st = SessionState{
			Symbol:     s.symbol,
			Timeframe:  s.sel.Active(),
			Generation: s.gen,
			Seeding:    s.seeding,
			Queued:     len(s.queue),
			LastPrice:  s.lastPrice,
			Spread:     s.book.Spread(),
			Buckets:    make(map[string]int, domrepo.NumTimeframes),
		}
		for _, tf := range domrepo.Timeframes {
			st.Buckets[string(tf)] = s.agg.Len(tf)
		}
	})
	return st, err
}

// Symbols lists the selectable symbols.
func (s *MarketSession) Symbols() []string { return append([]string{}, s.cfg.Symbols...) }

func (s *MarketSession) knownSymbol(symbol string) bool {
	if len(s.cfg.Symbols) == 0 {
		return true
	}
	for _, k := range s.cfg.Symbols {
		if k == symbol {
			return true
		}
	}
	return false
}

func (s *MarketSession) selectSymbol(ctx context.Context, symbol string) error {
	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" || !s.knownSymbol(symbol) {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}

	s.gen++
	gen := s.gen
	s.symbol = symbol
	s.agg = candles.NewAggregator()
	s.sel.Rebind(symbol, s.agg)
	s.book.Reset()
	s.seen = make(map[int64]struct{})
	s.recent = nil
	s.queue = nil
	s.lastPrice = 0
	s.seeding = true

	s.log.Info("symbol selected", logger.String("symbol", symbol), logger.Uint64("generation", gen))

	go s.fetchHistory(ctx, gen, symbol)
	return nil
}

func (s *MarketSession) fetchHistory(ctx context.Context, gen uint64, symbol string) {
	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	trades, err := s.history.RecentTrades(fctx, symbol, s.cfg.HistoryWindow)
	cancel()
	s.metrics.RecordLatency("history_fetch", time.Since(start).Seconds())
	s.post(func(context.Context) { s.completeSeed(gen, symbol, trades, err) })
}

func (s *MarketSession) completeSeed(gen uint64, symbol string, history []models.Trade, err error) {
	if gen != s.gen {
		s.metrics.RecordError("seed_stale")
		s.log.Debug("stale history discarded",
			logger.String("symbol", symbol),
			logger.Uint64("generation", gen),
			logger.Uint64("current", s.gen))
		return
	}
	if err != nil {
		s.metrics.RecordError("history_fetch")
		s.log.Warn("history fetch failed, starting empty", logger.String("symbol", symbol), logger.Error(err))
		history = nil
	}

	start := time.Now()
	sorted := append([]models.Trade(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EventTimeMs < sorted[j].EventTimeMs })

	seen := make(map[int64]struct{}, len(sorted)+len(s.queue))
	seed := sorted[:0]
	for _, t := range sorted {
		if _, dup := seen[t.TradeID]; dup {
			continue
		}
		seen[t.TradeID] = struct{}{}
		seed = append(seed, t)
	}
	s.agg.Seed(seed)

	queued := s.queue
	s.queue = nil
	applied := 0
	for _, t := range queued {
		if _, dup := seen[t.TradeID]; dup {
			continue
		}
		seen[t.TradeID] = struct{}{}
		s.agg.IngestTrade(t)
		applied++
	}
	s.seen = seen
	s.seeding = false
	s.sel.Refresh()

	for _, tf := range domrepo.Timeframes {
		s.metrics.RecordBuckets(tf, s.agg.Len(tf))
	}
	s.metrics.RecordLatency("seed", time.Since(start).Seconds())
	s.log.Info("history seeded",
		logger.String("symbol", symbol),
		logger.Int("trades", len(seed)),
		logger.Int("queued", applied),
		logger.Int("buckets", s.agg.Len(s.sel.Active())))
}

func (s *MarketSession) onTrade(t models.Trade) bool {
	if !strings.EqualFold(t.Ticker, s.symbol) {
		return false
	}
	s.lastPrice = t.Price
	if _, dup := s.seen[t.TradeID]; dup {
		s.metrics.RecordError("duplicate")
		return false
	}
	s.seen[t.TradeID] = struct{}{}

	s.recent = append([]models.Trade{t}, s.recent...)
	if len(s.recent) > RecentTradesLimit {
		s.recent = s.recent[:RecentTradesLimit]
	}

	if s.seeding {
		s.queue = append(s.queue, t)
		return true
	}

	s.agg.IngestTrade(t)
	tf := s.sel.Active()
	if c, v, ok := s.agg.At(tf, tf.BucketStartMs(t.EventTimeMs)); ok {
		s.sel.ApplyLiveUpdate(tf, c, v)
	}
	s.metrics.RecordBuckets(tf, s.agg.Len(tf))
	return true
}
