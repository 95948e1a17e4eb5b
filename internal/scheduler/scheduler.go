package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"BotInvest/internal/collector"
	"BotInvest/internal/ledger"
	"BotInvest/internal/observability"
	"BotInvest/internal/recorder"
	"BotInvest/internal/screener"
)

const (
	jobScreening = "screening"
	jobSnapshot  = "equity_snapshot"
)

// Screener runs a screening pass over a universe.
type Screener interface {
	Run(ctx context.Context, universe []string) (*screener.Result, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Screener  Screener
	Collector *collector.Collector
	Ledger    *ledger.Ledger
	Recorder  recorder.Recorder
	Universe  []string
	Ctx       context.Context

	// OnScreening, when set, receives every completed screening result.
	OnScreening func(*screener.Result)

	metrics *observability.Metrics
	logger  *zap.Logger
	mu      sync.Mutex // serialises manual and cron-triggered screening runs
}

// NewScheduler creates a new Scheduler. Overlapping runs of the same job are
// skipped rather than queued.
func NewScheduler(ctx context.Context, scr Screener, col *collector.Collector, l *ledger.Ledger,
	rec recorder.Recorder, universe []string, metrics *observability.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		Screener:  scr,
		Collector: col,
		Ledger:    l,
		Recorder:  rec,
		Universe:  universe,
		Ctx:       ctx,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterAll registers the screening and equity snapshot tasks. An empty
// expression disables that task.
func (s *Scheduler) RegisterAll(screenCron, snapshotCron string) error {
	if screenCron != "" {
		if _, err := s.Cron.AddFunc(screenCron, s.screeningTask); err != nil {
			return fmt.Errorf("register screening task: %w", err)
		}
	}
	if snapshotCron != "" {
		if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
			return fmt.Errorf("register snapshot task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunScreeningNow executes a screening pass immediately and records it.
func (s *Scheduler) RunScreeningNow() (*screener.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("running screening task", zap.Int("universe", len(s.Universe)))
	res, err := s.Screener.Run(s.Ctx, s.Universe)
	if err != nil && res == nil {
		return nil, err
	}

	if recErr := s.Recorder.RecordScreening(s.Ctx, res); recErr != nil {
		s.logger.Error("record screening", zap.String("run_id", res.RunID), zap.Error(recErr))
	}
	s.logger.Info("screening task done",
		zap.String("run_id", res.RunID),
		zap.Int("long_term", len(res.LongTerm)),
		zap.Int("short_term", len(res.ShortTerm)),
		zap.Int("watch", len(res.Watch)),
		zap.Int("errors", len(res.Errors)))
	if s.OnScreening != nil {
		s.OnScreening(res)
	}
	return res, err
}

// SnapshotNow values the ledger at the latest closes and records the mark.
// Positions whose price could not be fetched are reported as valuation
// warnings and excluded.
func (s *Scheduler) SnapshotNow() (*ledger.Valuation, error) {
	positions := s.Ledger.Positions()
	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.Symbol
	}

	prices, errs := s.Collector.LatestCloses(s.Ctx, symbols)
	for _, err := range errs {
		s.logger.Warn("latest close unavailable", zap.Error(err))
	}

	v := s.Ledger.Valuation(prices)
	if err := s.Recorder.RecordEquity(s.Ctx, &v); err != nil {
		return &v, fmt.Errorf("record equity: %w", err)
	}
	s.logger.Info("equity snapshot",
		zap.String("cash", v.Cash.StringFixed(2)),
		zap.String("equity", v.Equity.StringFixed(2)),
		zap.Int("positions", len(v.Positions)),
		zap.Int("warnings", len(v.Warnings)))
	return &v, nil
}

func (s *Scheduler) screeningTask() {
	_, err := s.RunScreeningNow()
	s.metrics.RecordJob(jobScreening, err)
	if err != nil {
		s.logger.Error("screening task", zap.Error(err))
	}
}

func (s *Scheduler) snapshotTask() {
	_, err := s.SnapshotNow()
	s.metrics.RecordJob(jobSnapshot, err)
	if err != nil {
		s.logger.Error("snapshot task", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
