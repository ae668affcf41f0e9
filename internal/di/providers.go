package di

import (
	"context"
	"fmt"
	"time"

	"PerpScope/internal/domain/repository"
	"PerpScope/internal/handler/api"
	"PerpScope/internal/relevance"
	internalrepo "PerpScope/internal/repository"
	"PerpScope/internal/service/binance"
	"PerpScope/internal/signals"
	"PerpScope/internal/usecase"
	"PerpScope/pkg/cache"
	pkgch "PerpScope/pkg/clickhouse"
	"PerpScope/pkg/config"
	pkghttp "PerpScope/pkg/http"
	pkgkafka "PerpScope/pkg/kafka"
	applogger "PerpScope/pkg/logger"
	"PerpScope/pkg/metrics"
	"PerpScope/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the weekly
// levels table exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table := cfg.ClickHouse.Database + "." + cfg.ClickHouse.LevelsTable
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
		"CREATE TABLE IF NOT EXISTS " + table + ` (
            symbol String,
            period_start Date,
            high Float64,
            low Float64,
            poc Float64,
            vah Float64,
            val Float64,
            va_width_pct Float64,
            coverage_flag String
        ) ENGINE=ReplacingMergeTree ORDER BY (symbol, period_start)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStructuralSource creates the weekly-levels repository.
func ProvideStructuralSource(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.StructuralSource {
	store := internalrepo.NewCHLevelStore(
		chClient,
		cfg.ClickHouse.Database+"."+cfg.ClickHouse.LevelsTable,
		cfg.ClickHouse.LookbackDays,
	)
	store.SetLogger(l)
	return store
}

// ProvideCache creates the kline cache: Redis when configured, in-memory
// otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Redis.Enabled {
		return cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
		)
	}
	return cache.NewMemoryCache(), nil
}

// ProvideMarketDataSource creates the live market-data source: the Binance
// futures client, or the deterministic mock when use_mock is set.
func ProvideMarketDataSource(cfg *config.Config, cacheSvc cache.Service, l *applogger.Logger) repository.MarketDataSource {
	if cfg.Binance.UseMock {
		return binance.NewMock(nil, 30*time.Minute)
	}

	httpClient := pkghttp.NewClient(pkghttp.WithTimeout(cfg.Binance.Timeout))
	return binance.New(
		httpClient,
		cfg.Binance.BaseURL,
		binance.WithProxy(cfg.Binance.ProxyURL),
		binance.WithBarInterval(cfg.Binance.BarInterval),
		binance.WithKlineLimit(cfg.Binance.KlineLimit),
		binance.WithQuoteSuffix(cfg.Binance.QuoteSuffix),
		binance.WithRateLimit(cfg.Binance.RequestsPerSec),
		binance.WithMaxRetryTime(cfg.Binance.MaxRetryTime),
		binance.WithKlineCache(cacheSvc, cfg.Binance.CacheTTL),
		binance.WithLogger(l),
	)
}

// ProvideEventPublisher creates the Kafka event fan-out, or a no-op when
// Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, l *applogger.Logger) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopEvents{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEvents(producer, cfg.Kafka.SnapshotTopic, cfg.Kafka.SignalTopic, l), nil
}

// ProvideWorkflow creates the refresh workflow with its session.
func ProvideWorkflow(
	levels repository.StructuralSource,
	market repository.MarketDataSource,
	events repository.EventPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Workflow {
	return usecase.NewWorkflow(
		usecase.NewSession(),
		levels,
		market,
		events,
		m,
		workflowConfig(cfg),
		l,
	)
}

// workflowConfig maps the YAML tuning surface onto the workflow config.
func workflowConfig(cfg *config.Config) usecase.Config {
	wf := cfg.Workflow
	return usecase.Config{
		Classifier: relevance.Config{
			TolerancePct:         wf.Classifier.TolerancePct,
			CompressionThreshold: wf.Classifier.CompressionThreshold,
			ExtendedThreshold:    wf.Classifier.ExtendedThreshold,
		},
		Signals: signals.Config{
			ZScoreWindow:         wf.Signals.ZScoreWindow,
			ZScoreThreshold:      wf.Signals.ZScoreThreshold,
			CVDShortWindow:       wf.Signals.CVDShortWindow,
			CVDLongWindow:        wf.Signals.CVDLongWindow,
			CVDMomentumThreshold: wf.Signals.CVDMomentumThreshold,
		},
		MaxInflight:  wf.Refresh.MaxInflight,
		FetchTimeout: wf.Refresh.FetchTimeout,
		BatchTimeout: wf.Refresh.BatchTimeout,
		KlineLimit:   cfg.Binance.KlineLimit,
	}
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(l *applogger.Logger, workflow *usecase.Workflow, levels repository.StructuralSource) pkghttp.Handler {
	return api.NewWorkflowHandler(l, workflow, levels)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler pkghttp.Handler,
	workflow *usecase.Workflow,
	chClient *pkgch.Client,
	events repository.EventPublisher,
) *server.App {
	return server.New(cfg, l, handler, workflow, chClient, events)
}
