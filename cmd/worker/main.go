package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"fundtrace/internal/adapter/repo"
	"fundtrace/internal/events"
	"fundtrace/internal/infra"
	"fundtrace/internal/ledger"
	"fundtrace/internal/risk"
)

const jobTimeout = 10 * time.Minute

type maintenanceWorker struct {
	engine     *ledger.Engine
	risk       *risk.Service
	staleAfter time.Duration
	logger     infra.Logger
	now        func() time.Time

	// Overlapping runs of the same job are skipped.
	mu      sync.Mutex
	running map[string]bool
}

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)
	ledgerStore := repo.NewLedgerStore(runner)

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to connect event broker")
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	model := risk.DefaultModel()
	model.AttendanceWeight = cfg.RiskWeightAttendance
	model.IncomeWeight = cfg.RiskWeightIncome
	model.ParentWeight = cfg.RiskWeightParent
	riskSvc, err := risk.NewService(repo.NewRiskStore(runner), ledgerStore,
		risk.WithModel(model), risk.WithLogger(logger), risk.WithPublisher(publisher))
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid risk model")
	}

	w := &maintenanceWorker{
		engine:     ledger.New(ledgerStore, ledger.WithLogger(logger)),
		risk:       riskSvc,
		staleAfter: cfg.RiskStaleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		running:    map[string]bool{},
	}

	if *once {
		w.run(ctx, "ledger_audit", w.audit)
		w.run(ctx, "risk_refresh", w.refreshRisk)
		return
	}

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	jobs := []struct {
		name     string
		schedule string
		fn       func(context.Context) error
	}{
		{"ledger_audit", cfg.LedgerAuditSchedule, w.audit},
		{"risk_refresh", cfg.RiskRefreshSchedule, w.refreshRisk},
	}
	for _, j := range jobs {
		j := j
		if _, err := scheduler.AddFunc(j.schedule, func() { w.run(ctx, j.name, j.fn) }); err != nil {
			logger.Fatal().Err(err).Str("job", j.name).Str("schedule", j.schedule).Msg("worker: invalid schedule")
		}
		logger.Info().Str("job", j.name).Str("schedule", j.schedule).Msg("worker: job scheduled")
	}

	scheduler.Start()
	logger.Info().Msg("worker: started")
	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info().Msg("worker: stopped")
}

func (w *maintenanceWorker) run(ctx context.Context, name string, fn func(context.Context) error) {
	w.mu.Lock()
	if w.running[name] {
		w.mu.Unlock()
		w.logger.Warn().Str("job", name).Msg("worker: previous run still in progress, skipping")
		return
	}
	w.running[name] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.running, name)
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	started := w.now()
	if err := fn(ctx); err != nil {
		w.logger.Error().Err(err).Str("job", name).Msg("worker: job failed")
		return
	}
	w.logger.Info().Str("job", name).Dur("duration", w.now().Sub(started)).Msg("worker: job finished")
}

func (w *maintenanceWorker) audit(ctx context.Context) error {
	violations, err := w.engine.Audit(ctx)
	if err != nil {
		return err
	}
	for _, v := range violations {
		w.logger.Error().Str("kind", v.Kind).Int64("id", v.ID).Str("detail", v.Detail).Msg("worker: ledger invariant violated")
	}
	w.logger.Info().Int("violations", len(violations)).Msg("worker: ledger audited")
	return nil
}

func (w *maintenanceWorker) refreshRisk(ctx context.Context) error {
	cutoff := w.now().Add(-w.staleAfter)
	n, err := w.risk.RefreshStale(ctx, cutoff)
	if err != nil {
		return err
	}
	w.logger.Info().Int("refreshed", n).Time("cutoff", cutoff).Msg("worker: stale predictions refreshed")
	return nil
}
