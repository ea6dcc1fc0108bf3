// Package history flattens stored snapshots of a fund into per-holding weight series.
package history

import (
	"context"
	"iter"
	"slices"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

type snapshotReader interface {
	Load(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error)
	ListDates(ctx context.Context, fundID string, since date.Date, count int) (iter.Seq[date.Date], error)
}

// Aggregator reads snapshot history. It has no side effects.
type Aggregator struct {
	store snapshotReader
}

// NewAggregator creates an aggregator over the snapshot store.
func NewAggregator(store snapshotReader) *Aggregator {
	return &Aggregator{store: store}
}

// LoadHistory concatenates up to days most recent stored snapshots of a fund
// in chronological order. Dates without a stored snapshot are simply absent.
func (a *Aggregator) LoadHistory(ctx context.Context, fundID string, days int) (History, error) {
	if days <= 0 {
		return History{}, errors.Wrapf(domain.ErrInvalidInput, "history window must be positive, got %d", days)
	}

	seq, err := a.store.ListDates(ctx, fundID, date.Date{}, days)
	if err != nil {
		return History{}, errors.Wrapf(err, "list stored dates of fund %s", fundID)
	}
	dates := slices.Collect(seq)
	slices.Reverse(dates)

	h := History{FundID: fundID}
	for _, on := range dates {
		snapshot, err := a.store.Load(ctx, fundID, on)
		if err != nil {
			return History{}, errors.Wrapf(err, "load snapshot of fund %s on %s", fundID, on)
		}
		h.dates = append(h.dates, on)
		for _, r := range snapshot.Records {
			h.points = append(h.points, domain.HistoryPoint{
				Date:      on,
				StockName: r.StockName,
				Weight:    r.Weight,
				Quantity:  r.Quantity,
			})
		}
	}

	return h, nil
}

// History flat chronological series of holding weights.
type History struct {
	FundID string
	dates  []date.Date
	points []domain.HistoryPoint
}

// All yields every point, date ascending, disclosed order within a date.
// The sequence can be ranged over repeatedly.
func (h History) All() iter.Seq[domain.HistoryPoint] {
	return func(yield func(domain.HistoryPoint) bool) {
		for _, p := range h.points {
			if !yield(p) {
				return
			}
		}
	}
}

// Points returns a copy of all points.
func (h History) Points() []domain.HistoryPoint { return slices.Clone(h.points) }

// Dates returns the stored dates covered, ascending.
func (h History) Dates() []date.Date { return slices.Clone(h.dates) }

// Len number of points.
func (h History) Len() int { return len(h.points) }

// Stocks returns the sorted unique stock names seen in the window.
func (h History) Stocks() []string {
	names := make([]string, 0)
	for _, p := range h.points {
		names = append(names, p.StockName)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Series returns the points of one stock, date ascending.
func (h History) Series(stock string) []domain.HistoryPoint {
	var out []domain.HistoryPoint
	for _, p := range h.points {
		if p.StockName == stock {
			out = append(out, p)
		}
	}
	return out
}
