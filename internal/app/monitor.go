// Package app wires collection, storage and analysis into per-fund monitoring runs.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/events"
	"github.com/vadiminshakov/fundwatch/internal/services/calendar"
	"github.com/vadiminshakov/fundwatch/internal/services/collector"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
	"github.com/vadiminshakov/fundwatch/internal/services/rebalance"
	"github.com/vadiminshakov/fundwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	defaultBaselineLookback = 1
	defaultParallelism      = 4
)

// Report is the outcome of one monitoring run for a fund and date.
type Report struct {
	RunID        uuid.UUID               `json:"run_id"`
	Fund         domain.Fund             `json:"fund"`
	Date         date.Date               `json:"date"`
	Snapshot     domain.HoldingSnapshot  `json:"snapshot"`
	BaselineDate *date.Date              `json:"baseline_date,omitempty"`
	Result       *domain.RebalanceResult `json:"result,omitempty"`
	// BaselineMissing is set when no earlier snapshot was found; Result is nil then.
	BaselineMissing bool `json:"baseline_missing"`
}

// Outcome pairs a fund with the report or error of its run.
type Outcome struct {
	Fund   domain.Fund
	Report Report
	Err    error
}

// Monitor runs the collect, store, compare cycle for configured funds.
type Monitor struct {
	l           *zap.Logger
	collector   collector.Collector
	store       snapshots.Store
	calendar    *calendar.Calendar
	analyzer    *rebalance.Analyzer
	history     *history.Aggregator
	funds       []domain.Fund
	lookback    int
	parallelism int
	events      *events.Broadcaster[events.RunCompleted]
	today       func() date.Date
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithBaselineLookback sets how many business days back a baseline snapshot is searched for.
func WithBaselineLookback(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.lookback = n
		}
	}
}

// WithParallelism bounds how many funds RunAll processes at once.
func WithParallelism(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithEvents publishes a summary of every completed run to b.
func WithEvents(b *events.Broadcaster[events.RunCompleted]) Option {
	return func(m *Monitor) {
		m.events = b
	}
}

// WithClock sets the source of the current market date. The disclosure pages
// only show current holdings, so Run collects for that date alone.
func WithClock(today func() date.Date) Option {
	return func(m *Monitor) {
		if today != nil {
			m.today = today
		}
	}
}

// NewMonitor creates a monitor over the given funds.
func NewMonitor(
	l *zap.Logger,
	c collector.Collector,
	store snapshots.Store,
	cal *calendar.Calendar,
	analyzer *rebalance.Analyzer,
	funds []domain.Fund,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		l:           l,
		collector:   c,
		store:       store,
		calendar:    cal,
		analyzer:    analyzer,
		history:     history.NewAggregator(store),
		funds:       funds,
		lookback:    defaultBaselineLookback,
		parallelism: defaultParallelism,
		today:       func() date.Date { return date.Today(time.Local) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Funds returns the monitored funds.
func (m *Monitor) Funds() []domain.Fund {
	return m.funds
}

// Fund returns the monitored fund with the given id.
func (m *Monitor) Fund(id string) (domain.Fund, error) {
	for _, f := range m.funds {
		if f.ID == id {
			return f, nil
		}
	}
	return domain.Fund{}, errors.Wrapf(domain.ErrNotFound, "unknown fund %q", id)
}

// Run collects the fund's holdings for on, stores them and compares them with
// the baseline snapshot. on must be the current market date: a past date would
// store today's page under a stale key. Collection errors are returned unchanged.
func (m *Monitor) Run(ctx context.Context, fundID string, on date.Date) (Report, error) {
	fund, err := m.Fund(fundID)
	if err != nil {
		return Report{}, err
	}
	if today := m.today(); on != today {
		return Report{}, errors.Wrapf(domain.ErrInvalidInput,
			"holdings of fund %s can only be collected for %s, not %s", fund.ID, today, on)
	}

	l := m.l.With(zap.String("fund", fund.ID), zap.String("date", on.String()))

	snapshot, err := m.collector.Collect(ctx, fund, on)
	if err != nil {
		l.Error("collection failed", zap.Error(err))
		return Report{}, err
	}

	if err := m.store.Save(ctx, snapshot); err != nil {
		return Report{}, errors.Wrap(err, "save snapshot")
	}

	report, err := m.compare(ctx, l, fund, snapshot)
	if err != nil {
		return Report{}, err
	}
	m.publish(report)

	return report, nil
}

// Analyze compares an already stored snapshot with its baseline without fetching.
func (m *Monitor) Analyze(ctx context.Context, fundID string, on date.Date) (Report, error) {
	fund, err := m.Fund(fundID)
	if err != nil {
		return Report{}, err
	}

	snapshot, err := m.store.Load(ctx, fund.ID, on)
	if err != nil {
		return Report{}, err
	}

	l := m.l.With(zap.String("fund", fund.ID), zap.String("date", on.String()))
	return m.compare(ctx, l, fund, snapshot)
}

// Snapshot returns the stored snapshot of a fund for a date.
func (m *Monitor) Snapshot(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error) {
	if _, err := m.Fund(fundID); err != nil {
		return domain.HoldingSnapshot{}, err
	}
	return m.store.Load(ctx, fundID, on)
}

// RunAll runs every monitored fund concurrently. A failing fund does not stop
// the others; outcomes come back in fund order.
func (m *Monitor) RunAll(ctx context.Context, on date.Date) []Outcome {
	outcomes := make([]Outcome, len(m.funds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, fund := range m.funds {
		g.Go(func() error {
			report, err := m.Run(ctx, fund.ID, on)
			outcomes[i] = Outcome{Fund: fund, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	m.l.Info("monitoring round finished",
		zap.String("date", on.String()),
		zap.Int("funds", len(outcomes)),
		zap.Int("failed", failed))

	return outcomes
}

// History returns up to days most recent stored snapshots of a fund as a weight series.
func (m *Monitor) History(ctx context.Context, fundID string, days int) (history.History, error) {
	if _, err := m.Fund(fundID); err != nil {
		return history.History{}, err
	}
	return m.history.LoadHistory(ctx, fundID, days)
}

// Trend computes the weight trend of one holding over the last days snapshots.
func (m *Monitor) Trend(ctx context.Context, fundID, stock string, days, window int, smoothing history.Smoothing) (history.Trend, error) {
	h, err := m.History(ctx, fundID, days)
	if err != nil {
		return history.Trend{}, err
	}
	return h.Trend(stock, window, smoothing)
}

func (m *Monitor) compare(ctx context.Context, l *zap.Logger, fund domain.Fund, snapshot domain.HoldingSnapshot) (Report, error) {
	report := Report{
		RunID:    uuid.New(),
		Fund:     fund,
		Date:     snapshot.Date,
		Snapshot: snapshot,
	}

	baseline, err := m.baseline(ctx, fund.ID, snapshot.Date)
	if errors.Is(err, domain.ErrNotFound) {
		l.Info("no baseline snapshot, nothing to compare", zap.Int("lookback", m.lookback))
		report.BaselineMissing = true
		return report, nil
	}
	if err != nil {
		return Report{}, err
	}

	result, err := m.analyzer.Analyze(snapshot, baseline)
	if err != nil {
		return Report{}, errors.Wrap(err, "analyze rebalance")
	}

	report.BaselineDate = &baseline.Date
	report.Result = &result

	l.Info("rebalance analyzed",
		zap.String("run_id", report.RunID.String()),
		zap.String("baseline", baseline.Date.String()),
		zap.Int("new", len(result.NewStocks)),
		zap.Int("removed", len(result.RemovedStocks)),
		zap.Int("increased", len(result.IncreasedStocks)),
		zap.Int("decreased", len(result.DecreasedStocks)),
		zap.String("drift_ratio", result.DriftRatio.String()),
		zap.Bool("degraded", result.Degraded))

	return report, nil
}

// baseline returns the most recent stored snapshot among the lookback business days before on.
func (m *Monitor) baseline(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error) {
	for _, d := range m.calendar.PreviousBusinessDays(on, m.lookback) {
		snapshot, err := m.store.Load(ctx, fundID, d)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.HoldingSnapshot{}, errors.Wrapf(err, "load baseline of fund %s on %s", fundID, d)
		}
	}
	return domain.HoldingSnapshot{}, errors.Wrapf(domain.ErrNotFound, "no baseline for fund %s before %s", fundID, on)
}

func (m *Monitor) publish(r Report) {
	if m.events == nil {
		return
	}

	e := events.RunCompleted{
		Timestamp:       time.Now().UTC(),
		RunID:           r.RunID.String(),
		FundID:          r.Fund.ID,
		Date:            r.Date.String(),
		BaselineMissing: r.BaselineMissing,
	}
	if r.BaselineDate != nil {
		e.BaselineDate = r.BaselineDate.String()
	}
	if res := r.Result; res != nil {
		e.New = len(res.NewStocks)
		e.Removed = len(res.RemovedStocks)
		e.Increased = len(res.IncreasedStocks)
		e.Decreased = len(res.DecreasedStocks)
		e.DriftRatio = res.DriftRatio.String()
		e.Degraded = res.Degraded
	}
	m.events.Publish(e)
}
