// Package rebalance compares two holdings snapshots of a fund and splits the
// weight changes into price drift and manager trades.
package rebalance

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/fundwatch/internal/domain"
)

// deltaPlaces rounding of pure deltas; disclosed weights carry two decimals.
const deltaPlaces = 4

// minHeldForCalibration positions present on both dates before drift can be estimated.
const minHeldForCalibration = 2

// Analyzer classifies position changes between a baseline and a current snapshot.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	estimator DriftEstimator
}

// Option configures the Analyzer.
type Option func(*Analyzer)

// WithEstimator replaces the drift estimator.
func WithEstimator(e DriftEstimator) Option {
	return func(a *Analyzer) {
		if e != nil {
			a.estimator = e
		}
	}
}

// NewAnalyzer creates an Analyzer using the median ratio estimator unless overridden.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{estimator: MedianRatio{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type pair struct {
	prev, today domain.HoldingRecord
}

// noTrade reports whether the share count is known and unchanged.
func (p pair) noTrade() bool {
	return p.prev.Quantity > 0 && p.prev.Quantity == p.today.Quantity
}

// Analyze diffs today against baseline. Both snapshots are validated first.
// Cash lines are ignored.
// Pure deltas are estimates: the drift ratio assumes the untraded positions
// moved like the rest of the book.
func (a *Analyzer) Analyze(today, baseline domain.HoldingSnapshot) (domain.RebalanceResult, error) {
	if err := today.Validate(); err != nil {
		return domain.RebalanceResult{}, errors.Wrap(err, "today snapshot")
	}
	if err := baseline.Validate(); err != nil {
		return domain.RebalanceResult{}, errors.Wrap(err, "baseline snapshot")
	}
	if today.FundID != baseline.FundID {
		return domain.RebalanceResult{}, errors.Wrapf(domain.ErrInvalidInput,
			"cannot compare fund %s with fund %s", today.FundID, baseline.FundID)
	}
	if baseline.Date.After(today.Date) {
		return domain.RebalanceResult{}, errors.Wrapf(domain.ErrInvalidInput,
			"baseline %s is after %s", baseline.Date, today.Date)
	}

	result := domain.RebalanceResult{
		FundID:          today.FundID,
		Date:            today.Date,
		BaselineDate:    baseline.Date,
		NewStocks:       []domain.StockChange{},
		RemovedStocks:   []domain.StockChange{},
		IncreasedStocks: []domain.StockChange{},
		DecreasedStocks: []domain.StockChange{},
		Unchanged:       []string{},
		Method:          a.estimator.Name(),
	}

	prevByName := make(map[string]domain.HoldingRecord)
	for _, r := range baseline.Positions() {
		prevByName[r.StockName] = r
	}

	var held []pair
	seen := make(map[string]struct{})
	for _, r := range today.Positions() {
		seen[r.StockName] = struct{}{}
		prev, ok := prevByName[r.StockName]
		if !ok {
			result.NewStocks = append(result.NewStocks, domain.StockChange{
				StockName:       r.StockName,
				WeightPrev:      decimal.Zero,
				WeightToday:     r.Weight,
				VirtualWeight:   decimal.Zero,
				PureWeightDelta: r.Weight,
				QuantityToday:   r.Quantity,
			})
			continue
		}
		held = append(held, pair{prev: prev, today: r})
	}

	for _, r := range baseline.Positions() {
		if _, ok := seen[r.StockName]; ok {
			continue
		}
		result.RemovedStocks = append(result.RemovedStocks, domain.StockChange{
			StockName:       r.StockName,
			WeightPrev:      r.Weight,
			WeightToday:     decimal.Zero,
			VirtualWeight:   r.Weight,
			PureWeightDelta: r.Weight.Neg(),
			QuantityPrev:    r.Quantity,
		})
	}

	// a single held position only calibrates against itself
	var calibration []CalibrationPoint
	for _, p := range held {
		if len(held) >= minHeldForCalibration && p.noTrade() {
			calibration = append(calibration, CalibrationPoint{WeightPrev: p.prev.Weight, WeightToday: p.today.Weight})
		}
	}

	ratio, ok := a.estimator.Estimate(calibration)
	if !ok {
		ratio = decimal.NewFromInt(1)
		result.Degraded = true
	}
	result.DriftRatio = ratio
	if !result.Degraded {
		result.CalibrationSize = len(calibration)
	}

	for _, p := range held {
		c := domain.StockChange{
			StockName:     p.today.StockName,
			WeightPrev:    p.prev.Weight,
			WeightToday:   p.today.Weight,
			VirtualWeight: p.prev.Weight.Mul(ratio),
			QuantityPrev:  p.prev.Quantity,
			QuantityToday: p.today.Quantity,
		}

		// an untraded position moved with the market by construction
		if p.noTrade() {
			c.PureWeightDelta = decimal.Zero
		} else {
			c.PureWeightDelta = c.WeightToday.Sub(c.VirtualWeight).Round(deltaPlaces)
		}

		switch c.PureWeightDelta.Sign() {
		case 1:
			result.IncreasedStocks = append(result.IncreasedStocks, c)
		case -1:
			result.DecreasedStocks = append(result.DecreasedStocks, c)
		default:
			result.Unchanged = append(result.Unchanged, c.StockName)
		}
	}

	for _, list := range [][]domain.StockChange{
		result.NewStocks, result.RemovedStocks, result.IncreasedStocks, result.DecreasedStocks,
	} {
		slices.SortFunc(list, func(x, y domain.StockChange) int { return strings.Compare(x.StockName, y.StockName) })
	}
	slices.Sort(result.Unchanged)

	return result, nil
}
