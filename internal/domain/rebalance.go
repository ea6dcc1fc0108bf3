package domain

import (
	"slices"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

// StockChange weight movement of one holding between the baseline and today.
type StockChange struct {
	StockName   string          `json:"stock_name"`
	WeightPrev  decimal.Decimal `json:"weight_prev"`
	WeightToday decimal.Decimal `json:"weight_today"`
	// VirtualWeight weight the holding would have today without trading.
	VirtualWeight decimal.Decimal `json:"virtual_weight"`
	// PureWeightDelta estimated trade-driven part of the weight change.
	PureWeightDelta decimal.Decimal `json:"pure_weight_delta"`
	QuantityPrev    int64           `json:"quantity_prev"`
	QuantityToday   int64           `json:"quantity_today"`
}

// RawDelta observed weight change, price drift included.
func (c StockChange) RawDelta() decimal.Decimal {
	return c.WeightToday.Sub(c.WeightPrev)
}

// RebalanceResult classified and decomposed diff between two snapshots of a fund.
type RebalanceResult struct {
	FundID       string    `json:"fund_id"`
	Date         date.Date `json:"date"`
	BaselineDate date.Date `json:"baseline_date"`

	NewStocks       []StockChange `json:"new_stocks"`
	RemovedStocks   []StockChange `json:"removed_stocks"`
	IncreasedStocks []StockChange `json:"increased_stocks"`
	DecreasedStocks []StockChange `json:"decreased_stocks"`
	// Unchanged names of held-on-both-dates positions without net manager action.
	Unchanged []string `json:"unchanged"`

	// DriftRatio portfolio-wide no-trade weight ratio applied to baseline weights.
	DriftRatio      decimal.Decimal `json:"drift_ratio"`
	CalibrationSize int             `json:"calibration_size"`
	// Degraded is set when fewer than two positions were held on both dates or none kept its share count; pure deltas then equal raw deltas.
	Degraded bool   `json:"degraded"`
	Method   string `json:"method"`
}

// HasChanges reports whether any position was added, removed, increased or decreased.
func (r RebalanceResult) HasChanges() bool {
	return len(r.NewStocks)+len(r.RemovedStocks)+len(r.IncreasedStocks)+len(r.DecreasedStocks) > 0
}

// TopIncreased returns up to n increases, largest pure delta first. n <= 0 returns all.
func (r RebalanceResult) TopIncreased(n int) []StockChange {
	return topN(r.IncreasedStocks, n, func(a, b StockChange) int {
		return b.PureWeightDelta.Cmp(a.PureWeightDelta)
	})
}

// TopDecreased returns up to n decreases, most negative pure delta first. n <= 0 returns all.
func (r RebalanceResult) TopDecreased(n int) []StockChange {
	return topN(r.DecreasedStocks, n, func(a, b StockChange) int {
		return a.PureWeightDelta.Cmp(b.PureWeightDelta)
	})
}

func topN(changes []StockChange, n int, cmp func(a, b StockChange) int) []StockChange {
	sorted := slices.Clone(changes)
	slices.SortStableFunc(sorted, cmp)
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
