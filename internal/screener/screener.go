package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"BotInvest/internal/calculator"
	"BotInvest/internal/collector"
	"BotInvest/internal/model"
	"BotInvest/internal/observability"
)

// ErrSymbolTimeout marks a symbol whose collection exceeded the per-symbol timeout.
var ErrSymbolTimeout = errors.New("symbol timed out")

// SeriesSource resolves a symbol to a validated price series.
type SeriesSource interface {
	Collect(ctx context.Context, symbol string) (*model.PriceSeries, error)
}

// Config controls classification and fan-out.
type Config struct {
	Thresholds    Thresholds    `yaml:"thresholds"`
	Weights       Weights       `yaml:"weights"`
	Workers       int           `yaml:"workers"`
	SymbolTimeout time.Duration `yaml:"symbol_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		Weights:       DefaultWeights(),
		Workers:       8,
		SymbolTimeout: 10 * time.Second,
	}
}

// SymbolError records why a symbol was skipped.
type SymbolError struct {
	Symbol string
	Err    error
}

func (e SymbolError) Error() string { return e.Symbol + ": " + e.Err.Error() }
func (e SymbolError) Unwrap() error { return e.Err }

// Result is the outcome of one screening run. Each bucket is ranked by score
// descending, ties broken by symbol.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Universe  []string
	LongTerm  []model.Opportunity
	ShortTerm []model.Opportunity
	Watch     []model.Opportunity
	Errors    []SymbolError
}

// Screened is the number of symbols that produced a snapshot.
func (r *Result) Screened() int { return len(r.Universe) - len(r.Errors) }

// Analysis is the single-symbol view used for advisory input.
type Analysis struct {
	Snapshot      model.IndicatorSnapshot
	Opportunities []model.Opportunity
	Bars          int
}

// Screener classifies a universe of symbols. It holds no state across runs.
type Screener struct {
	source  SeriesSource
	engine  *calculator.Engine
	cfg     Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Screener.
type Option func(*Screener)

func WithLogger(l *zap.Logger) Option { return func(s *Screener) { s.logger = l } }

func WithMetrics(m *observability.Metrics) Option { return func(s *Screener) { s.metrics = m } }

// New creates a Screener. The engine must compute both rule windows.
func New(source SeriesSource, engine *calculator.Engine, cfg Config, opts ...Option) (*Screener, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("screener thresholds: %w", err)
	}
	windows := map[int]bool{}
	for _, w := range engine.Config().SMAWindows {
		windows[w] = true
	}
	if !windows[cfg.Thresholds.ShortWindow] || !windows[cfg.Thresholds.LongWindow] {
		return nil, fmt.Errorf("indicator engine lacks SMA%d or SMA%d", cfg.Thresholds.ShortWindow, cfg.Thresholds.LongWindow)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	s := &Screener{source: source, engine: engine, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type outcome struct {
	opps []model.Opportunity
	err  error
}

// Run screens every symbol in universe concurrently. Per-symbol failures are
// collected in Result.Errors and never abort the batch. The returned error is
// non-nil only when ctx itself was cancelled; the partial Result is still valid.
func (s *Screener) Run(ctx context.Context, universe []string) (*Result, error) {
	universe = collector.NormalizeUniverse(universe)
	ctx, span := observability.StartSpan(ctx, "screener.Run", attribute.Int("universe.size", len(universe)))
	defer span.End()

	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Universe:  universe,
	}
	outcomes := make([]outcome, len(universe))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, symbol := range universe {
		g.Go(func() error {
			opps, err := s.screenSymbol(ctx, symbol)
			outcomes[i] = outcome{opps: opps, err: err}
			return nil
		})
	}
	_ = g.Wait()

	tags := map[string]int{}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, SymbolError{Symbol: universe[i], Err: o.err})
			s.logger.Warn("symbol skipped", zap.String("symbol", universe[i]), zap.Error(o.err))
			continue
		}
		for _, opp := range o.opps {
			tags[string(opp.Tag)]++
			switch opp.Tag {
			case model.TagLongTerm:
				res.LongTerm = append(res.LongTerm, opp)
			case model.TagShortTerm:
				res.ShortTerm = append(res.ShortTerm, opp)
			default:
				res.Watch = append(res.Watch, opp)
			}
		}
	}
	rank(res.LongTerm)
	rank(res.ShortTerm)
	rank(res.Watch)
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Symbol < res.Errors[j].Symbol })
	res.Duration = time.Since(res.StartedAt)

	status := "ok"
	if ctx.Err() != nil {
		status = "cancelled"
	}
	s.metrics.RecordScreening(status, res.Duration.Seconds(), res.Screened(), len(res.Errors), tags)
	s.logger.Info("screening finished",
		zap.String("run_id", res.RunID),
		zap.Int("universe", len(universe)),
		zap.Int("long_term", len(res.LongTerm)),
		zap.Int("short_term", len(res.ShortTerm)),
		zap.Int("watch", len(res.Watch)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration))

	return res, ctx.Err()
}

// Analyze screens a single symbol and returns its snapshot and classifications.
func (s *Screener) Analyze(ctx context.Context, symbol string) (*Analysis, error) {
	symbol = collector.NormalizeTicker(symbol)
	series, err := s.collect(ctx, symbol)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.Snapshot(series)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Snapshot:      snap,
		Opportunities: Classify(snap, s.cfg.Thresholds, s.cfg.Weights),
		Bars:          series.Len(),
	}, nil
}

func (s *Screener) screenSymbol(ctx context.Context, symbol string) ([]model.Opportunity, error) {
	series, err := s.collect(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if need := s.engine.MinBars(); series.Len() < need {
		return nil, fmt.Errorf("%w: have %d bars, need %d", calculator.ErrInsufficientData, series.Len(), need)
	}
	snap, err := s.engine.Snapshot(series)
	if err != nil {
		return nil, err
	}
	return Classify(snap, s.cfg.Thresholds, s.cfg.Weights), nil
}

func (s *Screener) collect(ctx context.Context, symbol string) (*model.PriceSeries, error) {
	if s.cfg.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SymbolTimeout)
		defer cancel()
	}
	// Sources that ignore ctx are abandoned at the deadline; the buffered
	// channel lets their goroutine finish without a receiver.
	done := make(chan outcomeSeries, 1)
	go func() {
		series, err := s.source.Collect(ctx, symbol)
		done <- outcomeSeries{series: series, err: err}
	}()

	var out outcomeSeries
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrSymbolTimeout, s.cfg.SymbolTimeout, out.err)
		}
		return nil, out.err
	}
	return out.series, nil
}

type outcomeSeries struct {
	series *model.PriceSeries
	err    error
}

func rank(opps []model.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Score != opps[j].Score {
			return opps[i].Score > opps[j].Score
		}
		return opps[i].Symbol < opps[j].Symbol
	})
}
