package cli

import (
	"context"
	"log/slog"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/api"
	"pix-gateway/internal/charge"
	"pix-gateway/internal/config"
	"pix-gateway/internal/credentials"
	"pix-gateway/internal/db"
	"pix-gateway/internal/kafka"
	"pix-gateway/internal/logging"
	"pix-gateway/internal/metrics"
	"pix-gateway/internal/monitor"
	"pix-gateway/internal/poller"
	"pix-gateway/internal/reconcile"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"
)

// app is the wiring shared by every command. Missing platform configuration
// aborts the invocation before any component is built.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	writer       *kafkago.Writer
	orchestrator *charge.Orchestrator
	poller       *poller.Poller
	engine       *reconcile.Engine
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.GetLogger(cfg.Logs)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid platform configuration", "error", err)
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	metrics.Setup(cfg.Metrics, logger)

	connStr := db.GetConnStr(cfg.Database)
	if err := db.RunMigrations(connStr); err != nil {
		return nil, err
	}

	pool, err := db.GetPool(ctx, connStr)
	if err != nil {
		return nil, err
	}

	transactions := db.NewTransactionRepository(pool)
	merchants := db.NewMerchantRepository(pool)
	resolver := credentials.NewResolver(db.NewSettingsRepository(pool), cfg.Platform.Settings())
	registry := acquirer.NewRegistry(cfg.Acquirers, resolver, db.NewTokenRepository(pool), logger)
	recorder := monitor.NewRecorder(db.NewEventRepository(pool), logger)

	a := &app{cfg: cfg, logger: logger, pool: pool}

	var publisher poller.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Broker.URL != "" {
		a.writer = kafka.NewWriter(cfg.Kafka)
		publisher = kafka.NewSettlementPublisher(a.writer, logger)
	} else {
		logger.Warn("No kafka broker configured, settlement events are not published")
	}

	a.orchestrator = charge.NewOrchestrator(transactions, merchants, resolver, registry, recorder, logger)
	a.poller = poller.NewPoller(transactions, registry, resolver, publisher, cfg.Poller, logger)
	a.engine = reconcile.NewEngine(transactions, merchants, resolver, registry, cfg.Poller, logger)
	return a, nil
}

func (a *app) handler() *api.Handler {
	return api.NewHandler(a.orchestrator, a.poller, a.engine, a.logger)
}

func (a *app) Close() {
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Error("Error closing kafka writer", "error", err)
		}
	}
	a.pool.Close()
}
