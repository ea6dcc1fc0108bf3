package domain

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

// HistoryPoint weight of one holding on one stored date.
type HistoryPoint struct {
	Date      date.Date       `json:"date"`
	StockName string          `json:"stock_name"`
	Weight    decimal.Decimal `json:"weight_pct"`
	Quantity  int64           `json:"quantity"`
}
