package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fundtrace/internal/adapter/repo"
	"fundtrace/internal/events"
	"fundtrace/internal/http/handlers"
	"fundtrace/internal/http/httpapi"
	"fundtrace/internal/infra"
	"fundtrace/internal/infra/credentials"
	"fundtrace/internal/infra/geoip"
	"fundtrace/internal/ledger"
	"fundtrace/internal/providers/gateway"
	"fundtrace/internal/risk"
	"fundtrace/internal/stats"
	"fundtrace/internal/storage"
	"fundtrace/internal/transparency"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")
	if err := cfg.RequireJWTSecret(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	ledgerStore := repo.NewLedgerStore(runner)
	riskStore := repo.NewRiskStore(runner)

	agg := stats.New(ledgerStore, stats.WithRiskStore(riskStore), stats.WithLogger(logger))
	publisher := events.Fanout{agg}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect event broker")
		}
		defer amqpPub.Close()
		publisher = append(publisher, amqpPub)
	}

	engine := ledger.New(ledgerStore, ledger.WithLogger(logger), ledger.WithPublisher(publisher))
	verifier := transparency.New(ledgerStore,
		transparency.Config{Tolerance: cfg.ReconcileTolerance, TolerancePercent: cfg.ReconcileTolerancePercent},
		transparency.WithLogger(logger),
		transparency.WithPublisher(publisher),
		transparency.WithURLPolicy(storage.NewURLPolicy(cfg.StorageBaseURL, cfg.EvidenceHostAllowlist)),
	)
	model := risk.DefaultModel()
	model.AttendanceWeight = cfg.RiskWeightAttendance
	model.IncomeWeight = cfg.RiskWeightIncome
	model.ParentWeight = cfg.RiskWeightParent
	riskSvc, err := risk.NewService(riskStore, ledgerStore,
		risk.WithModel(model), risk.WithLogger(logger), risk.WithPublisher(publisher))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid risk model")
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	defer resolver.Close()

	app := &handlers.App{
		Ledger:   engine,
		Reader:   ledgerStore,
		Verifier: verifier,
		Risk:     riskSvc,
		Stats:    agg,
		Evidence: fileStore,
		Ping:     dbpool.Ping,
		Logger:   logger,
	}
	if gw := newGateway(ctx, cfg, runner, logger); gw != nil {
		app.Gateway = gw
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		JWTSecret:      cfg.JWTSecret,
		RateLimit:      cfg.RateLimitPerMin,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		CountryLookup:  resolver.Lookup(),
		StaticDir:      storagePath,
	})

	// Donor stats are cached in this process, so their reconciliation runs here.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.StatsReconcileSchedule, func() {
		drifts, err := agg.Reconcile(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("api: stats reconcile failed")
			return
		}
		logger.Info().Int("drifted", len(drifts)).Msg("api: stats reconciled")
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.StatsReconcileSchedule).Msg("api: invalid stats schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().Str("addr", server.Addr()).Msg("api: listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("api: server stopped with error")
	}
	logger.Info().Msg("api: stopped")
}

// newGateway configures Midtrans from the environment, falling back to the
// key stored with cmd/gatewaykey. Without a key the webhook is disabled.
func newGateway(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, logger zerolog.Logger) *gateway.Midtrans {
	key := strings.TrimSpace(cfg.MidtransServerKey)
	production := cfg.AppEnv == "production"
	if key == "" {
		stored, storedProduction, err := credentials.NewStore(runner).MidtransServerKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("api: failed to load midtrans key from store")
		}
		key, production = stored, storedProduction
	}
	if key == "" {
		logger.Warn().Msg("api: midtrans server key missing, payment gateway disabled")
		return nil
	}
	gw, err := gateway.NewMidtrans(gateway.Options{
		ServerKey:  key,
		Production: production,
		Logger:     logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("api: failed to configure midtrans")
		return nil
	}
	return gw
}
