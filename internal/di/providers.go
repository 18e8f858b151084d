package di

import (
	"context"
	"fmt"
	"time"

	"SigPulse/internal/domain/repository"
	mid "SigPulse/internal/middleware"
	internalrepo "SigPulse/internal/repository"
	"SigPulse/internal/service/catalyst"
	"SigPulse/internal/service/quotes"
	"SigPulse/internal/service/watchlist"
	"SigPulse/internal/services/detect"
	"SigPulse/internal/usecase"
	pkgcache "SigPulse/pkg/cache"
	pkgch "SigPulse/pkg/clickhouse"
	"SigPulse/pkg/config"
	pkgkafka "SigPulse/pkg/kafka"
	applogger "SigPulse/pkg/logger"
	"SigPulse/pkg/metrics"
	"SigPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideWatchlistHolder creates the periodically reloaded watch-list.
func ProvideWatchlistHolder(cfg *config.Config, logger *applogger.Logger) *usecase.WatchlistHolder {
	loader := watchlist.New(cfg.Watchlist.Source, cfg.Watchlist.MaxSize, cfg.Watchlist.Timeout)
	return usecase.NewWatchlistHolder(loader, cfg.Watchlist.ReloadInterval, logger)
}

// ProvideQuoteSource creates the quote source, HTTP bulk by default or a
// websocket stream when configured. The stream variant needs the symbol set
// up front, so it loads the watch-list before subscribing.
func ProvideQuoteSource(cfg *config.Config, holder *usecase.WatchlistHolder) (repository.QuoteSource, error) {
	if cfg.Quotes.Source == "ws" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := holder.Reload(ctx); err != nil {
			return nil, fmt.Errorf("watchlist load for stream subscribe: %w", err)
		}
		return quotes.NewStream(ctx, cfg.Quotes.WebSocketURL, cfg.Quotes.APIKey,
			holder.Symbols(), cfg.Quotes.ReconnectDelay, cfg.Quotes.PingInterval)
	}
	return quotes.New(cfg.Quotes.BaseURL, cfg.Quotes.APIKey, cfg.Quotes.Timeout), nil
}

// ProvideCatalystCache creates the shared catalyst snapshot cache.
func ProvideCatalystCache() *usecase.CatalystCache {
	return usecase.NewCatalystCache()
}

// ProvideCatalystRefresher creates the HTTP catalyst poller, or nil when
// catalysts are disabled or fed over Kafka instead.
func ProvideCatalystRefresher(
	cfg *config.Config,
	cache *usecase.CatalystCache,
	holder *usecase.WatchlistHolder,
	logger *applogger.Logger,
) *usecase.CatalystRefresher {
	if !cfg.Catalyst.Enabled || cfg.Catalyst.Source != "http" {
		return nil
	}
	source := catalyst.New(cfg.Catalyst.BaseURL, cfg.Catalyst.Timeout)
	return usecase.NewCatalystRefresher(source, cache, holder.Symbols, cfg.Catalyst.RefreshInterval, logger)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublishPipeline creates the anti-storm publish pipeline, or nil
// when no producer is available to publish through.
func ProvidePublishPipeline(
	producer *pkgkafka.Producer,
	cfg *config.Config,
	m repository.Metrics,
) *mid.PublishPipeline {
	if producer == nil {
		return nil
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
	return mid.NewPublishPipeline(pub, m,
		mid.WithMinSpacing(2*time.Second),
		mid.WithBufferSize(500),
	)
}

// ProvideKafkaConsumer creates the catalyst-events consumer, or nil when the
// catalyst feed is not Kafka-backed.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaCatalystHandler registers the handler for the catalyst topic.
func ProvideKafkaCatalystHandler(
	cfg *config.Config,
	cache *usecase.CatalystCache,
	m repository.Metrics,
) *usecase.KafkaCatalystHandler {
	if !cfg.Catalyst.Enabled || cfg.Catalyst.Source != "kafka" {
		return nil
	}
	return usecase.NewKafkaCatalystHandler(cfg.Kafka.Consumer.CatalystTopic, cache, m)
}

// ProvideClickHouseClient creates a ClickHouse client with the signal-history
// schema applied, or nil when history is off.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSignalHistory creates the ClickHouse history sink, or nil. Init is a
// readiness check so a dead connection fails construction, not the first write.
func ProvideSignalHistory(chClient *pkgch.Client, cfg *config.Config) (repository.SignalHistory, error) {
	if chClient == nil {
		return nil, nil
	}
	h := internalrepo.NewClickHouseSignalHistory(chClient.DB(), cfg.ClickHouse.Database)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Init(ctx); err != nil {
		return nil, fmt.Errorf("signal history init: %w", err)
	}
	return h, nil
}

// ProvideSnapshotMirror creates the Redis snapshot mirror, or nil.
func ProvideSnapshotMirror(cfg *config.Config) (repository.SnapshotMirror, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "sigpulse"
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis mirror: %w", err)
	}
	layered := pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(16))
	return internalrepo.NewRedisSnapshotMirror(layered, cfg.Redis.MirrorTTL), nil
}

// ProvideSnapshotStore creates the crash-safe file snapshot store.
func ProvideSnapshotStore(cfg *config.Config) repository.SnapshotStore {
	return internalrepo.NewFileSnapshotStore(cfg.Engine.SnapshotPath, cfg.Engine.CompactPath)
}

// ProvideEngine assembles the detection engine from the per-symbol state
// machines and the persistence and transport collaborators.
func ProvideEngine(
	cfg *config.Config,
	logger *applogger.Logger,
	m repository.Metrics,
	source repository.QuoteSource,
	holder *usecase.WatchlistHolder,
	cache *usecase.CatalystCache,
	store repository.SnapshotStore,
	mirror repository.SnapshotMirror,
	pipeline *mid.PublishPipeline,
	history repository.SignalHistory,
) (*usecase.Engine, error) {
	hours, err := detect.NewActiveHours(detect.ActiveHoursConfig{
		Timezone:  cfg.Engine.ActiveHours.Timezone,
		OpenHour:  cfg.Engine.ActiveHours.OpenHour,
		CloseHour: cfg.Engine.ActiveHours.CloseHour,
	})
	if err != nil {
		return nil, err
	}

	thresholds := detect.ThresholdConfig{
		A0ChangePct:          cfg.Engine.Thresholds.A0ChangePct,
		A0VolumeRatio:        cfg.Engine.Thresholds.A0VolumeRatio,
		A1ChangePct:          cfg.Engine.Thresholds.A1ChangePct,
		A1VolumeRatio:        cfg.Engine.Thresholds.A1VolumeRatio,
		A1SoloChangePct:      cfg.Engine.Thresholds.A1SoloChangePct,
		A2ChangePct:          cfg.Engine.Thresholds.A2ChangePct,
		A2VolumeRatio:        cfg.Engine.Thresholds.A2VolumeRatio,
		A2SurgeChangePct:     cfg.Engine.Thresholds.A2SurgeChangePct,
		A2SurgeVolumeRatio:   cfg.Engine.Thresholds.A2SurgeVolumeRatio,
		MinAverageVolume:     cfg.Engine.Thresholds.MinAverageVolume,
		StaleVelocityPolls:   cfg.Engine.Thresholds.StaleVelocityPolls,
		StaleVelocityEpsPct:  cfg.Engine.Thresholds.StaleVelocityEpsPct,
		CatalystPromoteScore: cfg.Engine.Thresholds.CatalystPromoteScore,
		CatalystFreshFor:     cfg.Engine.Thresholds.CatalystFreshFor,
	}
	if thresholds.A0ChangePct <= 0 {
		thresholds = detect.DefaultThresholdConfig()
	}

	curve := detect.NewVolumeCurve(hours.Location())
	regime := detect.NewVolumeRegimeDetector()
	deltas := detect.NewDeltaTracker(thresholds.StaleVelocityPolls + 4)
	hysteresis := detect.NewGateHysteresis(detect.HysteresisConfig{
		MarginPct:      cfg.Engine.Hysteresis.MarginPct,
		MinHoldSeconds: cfg.Engine.Hysteresis.MinHold,
	}, thresholds.Boundaries())
	cooldown := detect.NewDynamicCooldown(detect.CooldownConfig{
		Base:     cfg.Engine.Cooldown.Base,
		Min:      cfg.Engine.Cooldown.Min,
		Max:      cfg.Engine.Cooldown.Max,
		RingSize: cfg.Engine.Cooldown.RingSize,
	})
	classifier := detect.NewClassifier(thresholds, hours, curve, regime, hysteresis, cooldown, deltas)
	lifecycle := usecase.NewLifecycleManager(usecase.LifecycleConfig{
		MaxLifetime:       cfg.Engine.Lifecycle.MaxLifetime,
		A0MaxAge:          cfg.Engine.Lifecycle.A0MaxAge,
		A1MaxAge:          cfg.Engine.Lifecycle.A1MaxAge,
		FreshnessHalfLife: cfg.Engine.Lifecycle.FreshnessHalfLife,
	}, thresholds)

	engine := usecase.NewEngine(
		usecase.EngineConfig{PollInterval: cfg.Engine.PollInterval, MinSleep: cfg.Engine.MinSleep},
		usecase.EngineDeps{
			Source:     source,
			Watchlist:  holder,
			Catalysts:  cache,
			Classifier: classifier,
			Regime:     regime,
			Deltas:     deltas,
			Hysteresis: hysteresis,
			Cooldown:   cooldown,
			Hours:      hours,
			Curve:      curve,
			Lifecycle:  lifecycle,
			Store:      store,
			Mirror:     mirror,
			Pipeline:   pipeline,
			History:    history,
			Metrics:    m,
			Logger:     logger,
		},
	)
	return engine, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	engine *usecase.Engine,
	holder *usecase.WatchlistHolder,
	refresher *usecase.CatalystRefresher,
	pipeline *mid.PublishPipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCatalystHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *server.App {
	app := server.New(cfg, logger, engine, holder)
	if refresher != nil {
		app.SetRefresher(refresher)
	}
	if pipeline != nil {
		app.SetPipeline(pipeline)
	}
	if consumer != nil && kh != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
		app.SetConsumer(consumer, kh)
	}
	if producer != nil {
		app.SetProducer(producer)
	}
	if chClient != nil {
		app.SetClickHouse(chClient)
	}
	return app
}
