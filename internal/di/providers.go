package di

import (
	"context"
	"fmt"
	"time"

	"EduX/internal/domain/repository"
	"EduX/internal/handler/api"
	"EduX/internal/handler/ws"
	mid "EduX/internal/middleware"
	internalrepo "EduX/internal/repository"
	"EduX/internal/service/mdp"
	"EduX/internal/service/ratelimit"
	"EduX/internal/services/candles"
	"EduX/internal/usecase"
	"EduX/pkg/cache"
	pkgch "EduX/pkg/clickhouse"
	"EduX/pkg/config"
	xhttp "EduX/pkg/http"
	pkgkafka "EduX/pkg/kafka"
	"EduX/pkg/logger"
	"EduX/pkg/metrics"
	"EduX/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse when the archive or the
// history backend needs it. It returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.NeedsClickHouse() {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates the shared producer when any Kafka writer is configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Archive.Backend != usecase.BackendKafka && !cfg.CandleFeed.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(-1),
		pkgkafka.WithBatch(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithAsync(false),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideCache builds the in-process cache, backed by Redis when enabled.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, func(), error) {
	var remote cache.Service
	if cfg.Cache.Redis.Enabled {
		rc, err := cache.NewRedisCache(cfg.Cache.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		log.Info("redis cache connected",
			logger.String("host", cfg.Cache.Redis.Host),
			logger.Int("port", cfg.Cache.Redis.Port),
		)
		remote = rc
	}
	c := cache.NewLayeredCache(remote, cfg.Cache.MemoryMaxSize)
	return c, func() { _ = c.Close() }, nil
}

// ProvideTradeStore creates the ClickHouse trade table accessor, or nil
// when ClickHouse is not configured.
func ProvideTradeStore(client *pkgch.Client, cfg *config.Config) (*internalrepo.TradeStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewTradeStore(client.Conn(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("trades schema: %w", err)
	}
	return store, nil
}

// ProvideHistoryStore selects the seed source and puts the cache in front of it.
func ProvideHistoryStore(cfg *config.Config, store *internalrepo.TradeStore, c cache.Service, log *logger.Logger) repository.HistoryStore {
	var h repository.HistoryStore
	switch cfg.History.Backend {
	case "clickhouse":
		h = store
	default:
		h = internalrepo.NewDemoHistory(cfg.History.Seed)
	}
	return internalrepo.NewCachedHistory(h, c, cfg.Cache.TTL, log)
}

// ProvideHub creates the websocket hub.
func ProvideHub(m repository.Metrics, log *logger.Logger) *ws.Hub {
	return ws.NewHub(m, log)
}

// ProvideCandlePublisher creates the Kafka candle feed, or nil when disabled.
func ProvideCandlePublisher(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, log *logger.Logger) *internalrepo.CandlePublisher {
	if !cfg.CandleFeed.Enabled || producer == nil {
		return nil
	}
	return internalrepo.NewCandlePublisher(producer, cfg.Kafka.CandlesTopic, cfg.CandleFeed.Buffer, m, log)
}

// ProvideSession creates the market session and binds the hub to it.
func ProvideSession(
	cfg *config.Config,
	history repository.HistoryStore,
	hub *ws.Hub,
	feed *internalrepo.CandlePublisher,
	m repository.Metrics,
	log *logger.Logger,
) (*usecase.MarketSession, error) {
	tf, err := repository.ParseTimeframe(cfg.Session.Timeframe)
	if err != nil {
		return nil, err
	}
	sinks := candles.MultiSink{hub}
	if feed != nil {
		sinks = append(sinks, feed)
	}
	session := usecase.NewMarketSession(usecase.SessionConfig{
		Symbols:       cfg.Session.Symbols,
		InitialSymbol: cfg.Session.Ticker,
		Timeframe:     tf,
		HistoryWindow: cfg.Session.HistoryWindow,
		FetchTimeout:  cfg.Session.FetchTimeout,
		BookDepth:     cfg.Session.BookDepth,
	}, history, sinks, m, log)
	hub.Bind(session)
	return session, nil
}

// ProvideTradePublisher creates the Kafka archive publisher when selected.
func ProvideTradePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.Publisher {
	if cfg.Archive.Backend != usecase.BackendKafka || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TradesTopic)
}

// ProvideTradeStorage returns the ClickHouse archive when selected.
func ProvideTradeStorage(cfg *config.Config, store *internalrepo.TradeStore) repository.Storage {
	if cfg.Archive.Backend != usecase.BackendClickHouse || store == nil {
		return nil
	}
	return store
}

// ProvideTradeProcessor creates trade processor use case.
func ProvideTradeProcessor(
	cfg *config.Config,
	session *usecase.MarketSession,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TradeProcessor {
	return usecase.NewTradeProcessor(
		session,
		pub,
		store,
		m,
		log,
		cfg.Archive.Backend,
		cfg.Archive.BatchSize,
		cfg.Archive.BatchTimeout,
	)
}

// ProvidePipeline builds the validation stage in front of the processor.
func ProvidePipeline(cfg *config.Config, proc *usecase.TradeProcessor, m repository.Metrics) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m, mid.WithBookRate(cfg.Pipeline.BookRPS))
}

// ProvideMarketStream creates the MDP websocket stream.
func ProvideMarketStream(cfg *config.Config, m repository.Metrics, log *logger.Logger) repository.MarketStream {
	return mdp.New(cfg.MDP, m, log)
}

// ProvideTradeCollector creates trade collector use case.
func ProvideTradeCollector(
	stream repository.MarketStream,
	pipe *mid.RealtimePipeline,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TradeCollector {
	return usecase.NewTradeCollector(stream, pipe, m, log)
}

// ProvideKafkaConsumer creates the consumer for the kafka source, or nil.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerRetry(3, 50*time.Millisecond, 2*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTradesHandler creates the handler for the live trades topic.
func ProvideKafkaTradesHandler(cfg *config.Config, pipe *mid.RealtimePipeline, m repository.Metrics) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.TradesTopic, pipe, m)
}

// ProvideHTTPServer mounts the REST API, the websocket hub and /metrics.
func ProvideHTTPServer(
	cfg *config.Config,
	session *usecase.MarketSession,
	hub *ws.Hub,
	collector *usecase.TradeCollector,
	client *pkgch.Client,
	log *logger.Logger,
) *xhttp.Server {
	var checks []api.HealthCheck
	if cfg.Source == "mdp" {
		checks = append(checks, api.HealthCheck{Name: "mdp", Check: func(context.Context) error {
			if !collector.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		}})
	}
	if client != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: client.Health})
	}

	rl := ratelimit.New(cfg.API.SymbolSwitchRPS, cfg.API.SymbolSwitchBurst)
	handlers := []xhttp.Handler{
		api.NewMarketHandler(log, session, rl, checks...),
		hub,
	}
	return xhttp.NewServer(log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, handlers, xhttp.WithConfig(cfg.HTTP))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	session *usecase.MarketSession,
	processor *usecase.TradeProcessor,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTradesHandler,
	feed *internalrepo.CandlePublisher,
	hub *ws.Hub,
	httpServer *xhttp.Server,
) *server.App {
	d := server.Deps{
		Session:      session,
		Processor:    processor,
		Consumer:     consumer,
		KafkaHandler: kh,
		CandlePub:    feed,
		Hub:          hub,
		HTTPServer:   httpServer,
	}
	if cfg.Source != "kafka" {
		d.Collector = collector
	}
	return server.New(cfg, log, d)
}
