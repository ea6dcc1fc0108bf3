package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/fundwatch/internal/app"
	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
	"github.com/vadiminshakov/fundwatch/internal/services/rebalance"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

func rec(name, weight string, qty int64) domain.HoldingRecord {
	return domain.HoldingRecord{StockName: name, Weight: decimal.RequireFromString(weight), Quantity: qty}
}

func TestRebalance(t *testing.T) {
	baseline, err := domain.NewHoldingSnapshot("tf-22", date.MustParse("2025-07-04"),
		[]domain.HoldingRecord{rec("A", "10", 100), rec("B", "5", 50), rec("C", "85", 1000)})
	require.NoError(t, err)
	today, err := domain.NewHoldingSnapshot("tf-22", date.MustParse("2025-07-07"),
		[]domain.HoldingRecord{rec("A", "10.5", 100), rec("B", "4.0", 40), rec("삼성전자", "2", 10), rec("C", "83.5", 1000)})
	require.NoError(t, err)

	result, err := rebalance.NewAnalyzer().Analyze(today, baseline)
	require.NoError(t, err)

	r := app.Report{
		Fund:         domain.Fund{ID: "tf-22", Name: "Global Top Pick"},
		Date:         today.Date,
		Snapshot:     today,
		BaselineDate: &baseline.Date,
		Result:       &result,
	}

	var buf bytes.Buffer
	require.NoError(t, Rebalance(&buf, r, 5))
	out := buf.String()

	assert.Contains(t, out, "Global Top Pick (tf-22)")
	assert.Contains(t, out, "New")
	assert.Contains(t, out, "삼성전자")
	assert.Contains(t, out, "Decreased")
	assert.Contains(t, out, "-1.08")
	assert.Contains(t, out, "50 → 40")
	assert.NotContains(t, out, "Removed")
	assert.NotContains(t, out, "Increased")
}

func TestRebalance_NoBaseline(t *testing.T) {
	snapshot, err := domain.NewHoldingSnapshot("tf-22", date.MustParse("2025-07-07"), []domain.HoldingRecord{rec("A", "100", 1)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Rebalance(&buf, app.Report{Fund: domain.Fund{ID: "tf-22"}, Date: snapshot.Date, Snapshot: snapshot, BaselineMissing: true}, 5))
	assert.Contains(t, buf.String(), "no earlier snapshot stored, 1 holdings recorded")
}

func TestFunds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Funds(&buf, []domain.Fund{{ID: "tf-22", Name: "Global Top Pick", Category: "overseas"}}))
	assert.Contains(t, buf.String(), "tf-22")
	assert.Contains(t, buf.String(), "overseas")
}

func TestTrend(t *testing.T) {
	tr := history.Trend{
		StockName: "A",
		Dates:     []date.Date{date.MustParse("2025-07-01"), date.MustParse("2025-07-02"), date.MustParse("2025-07-03")},
		Weights:   []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(12), decimal.NewFromInt(14)},
		Average:   []decimal.Decimal{decimal.NewFromInt(11), decimal.NewFromInt(13)},
		Window:    2,
		Smoothing: history.SmoothingSMA,
		Direction: history.DirectionRising,
	}

	var buf bytes.Buffer
	require.NoError(t, Trend(&buf, tr))
	out := buf.String()
	assert.Contains(t, out, "SMA(2)")
	assert.Contains(t, out, "rising")
	assert.Contains(t, out, "13.00%")
	assert.Contains(t, out, "2025-07-01")
}
