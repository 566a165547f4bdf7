package server

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"EduX/internal/handler/ws"
	"EduX/internal/repository"
	"EduX/internal/usecase"
	"EduX/pkg/config"
	xhttp "EduX/pkg/http"
	pkgkafka "EduX/pkg/kafka"
	applogger "EduX/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	session    *usecase.MarketSession
	processor  *usecase.TradeProcessor
	collector  *usecase.TradeCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	candlePub  *repository.CandlePublisher
	hub        *ws.Hub
	httpServer *xhttp.Server
}

// Deps are the components App runs. Collector is used for the mdp source;
// Consumer and KafkaHandler for the kafka source. CandlePub is optional.
type Deps struct {
	Session      *usecase.MarketSession
	Processor    *usecase.TradeProcessor
	Collector    *usecase.TradeCollector
	Consumer     *pkgkafka.Consumer
	KafkaHandler pkgkafka.MessageHandler
	CandlePub    *repository.CandlePublisher
	Hub          *ws.Hub
	HTTPServer   *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, d Deps) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		session:    d.Session,
		processor:  d.Processor,
		collector:  d.Collector,
		consumer:   d.Consumer,
		kh:         d.KafkaHandler,
		candlePub:  d.CandlePub,
		hub:        d.Hub,
		httpServer: d.HTTPServer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	// loops that own state stop after the sources, so in-flight events drain
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.session.Run(loopCtx); err != nil {
			a.log.Error("session stopped", applogger.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		a.processor.Run(loopCtx)
	}()
	if a.candlePub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.candlePub.Run(loopCtx)
		}()
	}

	if err := a.startSource(ctx); err != nil {
		stopLoops()
		wg.Wait()
		return err
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		_ = a.shutdown(stopLoops, &wg)
		return err
	}

	a.log.Info("edux started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("source", a.cfg.Source),
		applogger.String("archive", a.cfg.Archive.Backend),
		applogger.String("history", a.cfg.History.Backend),
		applogger.String("ticker", a.cfg.Session.Ticker),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(stopLoops, &wg)
}

func (a *App) startSource(ctx context.Context) error {
	switch a.cfg.Source {
	case "kafka":
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	default:
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("collector started", applogger.String("endpoint", a.cfg.MDP.WebsocketURL))
	}
	return nil
}

// shutdown stops sources first, then the HTTP server, then the loops.
func (a *App) shutdown(stopLoops context.CancelFunc, wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout+5*time.Second)
	defer cancel()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	a.hub.Close()

	stopLoops()
	wg.Wait()
	a.processor.Close()

	a.log.Info("shutdown complete")
	return nil
}
