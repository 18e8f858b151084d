package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SigPulse/internal/handler/api"
	mid "SigPulse/internal/middleware"
	icache "SigPulse/internal/service/cache"
	"SigPulse/internal/usecase"
	pkgch "SigPulse/pkg/clickhouse"
	"SigPulse/pkg/config"
	xhttp "SigPulse/pkg/http"
	pkgkafka "SigPulse/pkg/kafka"
	applogger "SigPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	engine     *usecase.Engine
	watchlist  *usecase.WatchlistHolder
	refresher  *usecase.CatalystRefresher
	pipeline   *mid.PublishPipeline
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	producer   *pkgkafka.Producer
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	engine *usecase.Engine,
	watchlist *usecase.WatchlistHolder,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		watchlist: watchlist,
	}
}

// SetRefresher attaches the catalyst refresher loop.
func (a *App) SetRefresher(r *usecase.CatalystRefresher) { a.refresher = r }

// SetPipeline attaches the outbound publish pipeline.
func (a *App) SetPipeline(p *mid.PublishPipeline) { a.pipeline = p }

// SetConsumer attaches the catalyst-events Kafka consumer.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// SetProducer keeps a handle on the Kafka producer for shutdown.
func (a *App) SetProducer(p *pkgkafka.Producer) { a.producer = p }

// SetClickHouse keeps a handle on the ClickHouse client for shutdown.
func (a *App) SetClickHouse(c *pkgch.Client) { a.chClient = c }

// kafkaLogSink publishes aggregated log batches to Kafka, or drops them when
// no producer is configured.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          "sigpulse.logs",
		Publisher:      kafkaLogSink{producer: a.producer},
	})

	// HTTP query surface over the engine's active-signal view
	handler := api.NewSignalsHandler(l, a.engine)
	handler.SetCache(icache.NewTTLCache())
	handler.SetCollector(l.Collector())

	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path, a.cfg.Metrics.Port),
	)

	// Initial watchlist load decides whether the engine may poll at all.
	if n, err := a.watchlist.Reload(ctx); err != nil {
		l.Error("watchlist initial load failed", applogger.Error(err))
		a.engine.Disable("watchlist unavailable: " + err.Error())
	} else if n == 0 {
		a.engine.Disable("watchlist empty")
	}
	go a.watchlist.Run(ctx)

	if a.refresher != nil {
		go a.refresher.Run(ctx)
	}

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Warm start from the last persisted snapshot, then poll.
	a.engine.RestoreState(time.Now())
	go a.engine.Run(ctx)
	l.Info("engine started",
		applogger.Duration("poll_interval", a.cfg.Engine.PollInterval),
		applogger.Int("watchlist", len(a.watchlist.Symbols())),
	)

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	l := a.logger

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.RemoveCollector()
	l.Info("shutdown complete")
	return nil
}
