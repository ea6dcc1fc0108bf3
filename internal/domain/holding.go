package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// lower-cased names of the residual cash line
	cashNames = []string{"현금", "원화현금", "원화예금", "cash", "krw cash"}
)

// HoldingRecord one disclosed position of a fund.
type HoldingRecord struct {
	StockName string `json:"stock_name"`
	// Weight percent of fund net assets.
	Weight decimal.Decimal `json:"weight_pct"`
	// Quantity share or unit count, 0 for cash lines or when not disclosed.
	Quantity int64 `json:"quantity"`
}

// IsCash reports whether the record is the residual cash line rather than a tradable position.
func (r HoldingRecord) IsCash() bool {
	return slices.Contains(cashNames, strings.ToLower(strings.TrimSpace(r.StockName)))
}

func (r HoldingRecord) validate() error {
	if strings.TrimSpace(r.StockName) == "" {
		return invalidf("holding with empty stock name")
	}
	if r.Weight.IsNegative() || r.Weight.GreaterThan(hundred) {
		return invalidf("holding %q weight %s outside [0, 100]", r.StockName, r.Weight)
	}
	if r.Quantity < 0 {
		return invalidf("holding %q has negative quantity %d", r.StockName, r.Quantity)
	}
	return nil
}
