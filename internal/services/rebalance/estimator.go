package rebalance

import (
	"slices"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// CalibrationPoint weights of a position whose share count did not change.
type CalibrationPoint struct {
	WeightPrev  decimal.Decimal
	WeightToday decimal.Decimal
}

// DriftEstimator derives a portfolio-wide price drift ratio from no-trade positions.
// The returned ratio maps a baseline weight to its no-trade weight today.
// ok is false when no ratio can be derived from the points.
type DriftEstimator interface {
	Name() string
	Estimate(points []CalibrationPoint) (ratio decimal.Decimal, ok bool)
}

// MedianRatio takes the median of weight_today/weight_prev over the calibration set.
// A single outlier position does not move the estimate.
type MedianRatio struct{}

func (MedianRatio) Name() string { return "median" }

func (MedianRatio) Estimate(points []CalibrationPoint) (decimal.Decimal, bool) {
	ratios := make([]decimal.Decimal, 0, len(points))
	for _, p := range points {
		if !p.WeightPrev.IsPositive() {
			continue
		}
		ratios = append(ratios, p.WeightToday.Div(p.WeightPrev))
	}
	if len(ratios) == 0 {
		return decimal.Zero, false
	}

	slices.SortFunc(ratios, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	mid := len(ratios) / 2
	if len(ratios)%2 == 1 {
		return ratios[mid], true
	}
	return ratios[mid-1].Add(ratios[mid]).Div(two), true
}

// AggregateRatio divides the calibration set's total weight today by its total baseline weight,
// so large positions dominate the estimate.
type AggregateRatio struct{}

func (AggregateRatio) Name() string { return "aggregate" }

func (AggregateRatio) Estimate(points []CalibrationPoint) (decimal.Decimal, bool) {
	prev, today := decimal.Zero, decimal.Zero
	for _, p := range points {
		prev = prev.Add(p.WeightPrev)
		today = today.Add(p.WeightToday)
	}
	if !prev.IsPositive() {
		return decimal.Zero, false
	}
	return today.Div(prev), true
}

// EstimatorByName resolves a configured estimator name.
func EstimatorByName(name string) (DriftEstimator, bool) {
	switch name {
	case "", "median":
		return MedianRatio{}, true
	case "aggregate":
		return AggregateRatio{}, true
	default:
		return nil, false
	}
}
