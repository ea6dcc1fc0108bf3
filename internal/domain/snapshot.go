package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

// DefaultWeightTolerance accepted distance of a snapshot's weight sum from 100, in percentage points.
var DefaultWeightTolerance = decimal.NewFromInt(1)

// HoldingSnapshot disclosed holdings of one fund on one date.
// Snapshots are treated as immutable values: stores hand out copies.
type HoldingSnapshot struct {
	FundID  string          `json:"fund_id"`
	Date    date.Date       `json:"date"`
	Records []HoldingRecord `json:"records"`
}

// NewHoldingSnapshot validates records and builds a snapshot.
// Records keep the disclosed order.
func NewHoldingSnapshot(fundID string, on date.Date, records []HoldingRecord) (HoldingSnapshot, error) {
	s := HoldingSnapshot{
		FundID:  fundID,
		Date:    on,
		Records: slices.Clone(records),
	}
	if err := s.Validate(); err != nil {
		return HoldingSnapshot{}, err
	}
	return s, nil
}

// Validate checks the snapshot invariants: fund id and date set, unique stock names, sane records.
func (s HoldingSnapshot) Validate() error {
	if strings.TrimSpace(s.FundID) == "" {
		return invalidf("snapshot fund id is required")
	}
	if s.Date.IsZero() {
		return invalidf("snapshot date is required for fund %s", s.FundID)
	}

	seen := make(map[string]struct{}, len(s.Records))
	for _, r := range s.Records {
		if err := r.validate(); err != nil {
			return err
		}
		if _, dup := seen[r.StockName]; dup {
			return invalidf("stock %q disclosed twice in fund %s on %s", r.StockName, s.FundID, s.Date)
		}
		seen[r.StockName] = struct{}{}
	}
	return nil
}

// Key returns the storage key of the snapshot.
func (s HoldingSnapshot) Key() string {
	return s.FundID + "/" + s.Date.String()
}

// Lookup returns the record for the given stock name.
func (s HoldingSnapshot) Lookup(name string) (HoldingRecord, bool) {
	for _, r := range s.Records {
		if r.StockName == name {
			return r, true
		}
	}
	return HoldingRecord{}, false
}

// Positions returns the tradable records, cash lines excluded.
func (s HoldingSnapshot) Positions() []HoldingRecord {
	out := make([]HoldingRecord, 0, len(s.Records))
	for _, r := range s.Records {
		if !r.IsCash() {
			out = append(out, r)
		}
	}
	return out
}

// TotalWeight sums the weights of all records, cash included.
func (s HoldingSnapshot) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, r := range s.Records {
		total = total.Add(r.Weight)
	}
	return total
}

// WeightSumWithin reports whether the total weight is within tolerance of 100.
// Disclosed weights are rounded, so an exact 100 is not expected.
func (s HoldingSnapshot) WeightSumWithin(tolerance decimal.Decimal) bool {
	return s.TotalWeight().Sub(hundred).Abs().LessThanOrEqual(tolerance)
}

// Clone returns a deep copy.
func (s HoldingSnapshot) Clone() HoldingSnapshot {
	s.Records = slices.Clone(s.Records)
	return s
}

// Equal reports whether both snapshots hold the same key and records in the same order.
func (s HoldingSnapshot) Equal(o HoldingSnapshot) bool {
	if s.FundID != o.FundID || s.Date != o.Date || len(s.Records) != len(o.Records) {
		return false
	}
	for i := range s.Records {
		a, b := s.Records[i], o.Records[i]
		if a.StockName != b.StockName || a.Quantity != b.Quantity || !a.Weight.Equal(b.Weight) {
			return false
		}
	}
	return true
}
