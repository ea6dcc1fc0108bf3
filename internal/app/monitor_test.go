package app

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/events"
	"github.com/vadiminshakov/fundwatch/internal/services/calendar"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
	"github.com/vadiminshakov/fundwatch/internal/services/rebalance"
	"github.com/vadiminshakov/fundwatch/internal/storage/snapshots"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

var (
	friday = date.MustParse("2025-07-04")
	monday = date.MustParse("2025-07-07")
)

// stubCollector serves prepared holdings per (fund, date).
type stubCollector struct {
	mu       sync.Mutex
	holdings map[string][]domain.HoldingRecord
	fail     map[string]error
	calls    int
}

func newStubCollector() *stubCollector {
	return &stubCollector{holdings: map[string][]domain.HoldingRecord{}, fail: map[string]error{}}
}

func (s *stubCollector) set(fund string, on date.Date, records ...domain.HoldingRecord) {
	s.holdings[fund+"/"+on.String()] = records
}

func (s *stubCollector) Collect(_ context.Context, fund domain.Fund, on date.Date) (domain.HoldingSnapshot, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err, ok := s.fail[fund.ID]; ok {
		return domain.HoldingSnapshot{}, err
	}
	records, ok := s.holdings[fund.ID+"/"+on.String()]
	if !ok {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, errors.New("no table"))
	}
	return domain.NewHoldingSnapshot(fund.ID, on, records)
}

func rec(name, weight string, qty int64) domain.HoldingRecord {
	return domain.HoldingRecord{StockName: name, Weight: decimal.RequireFromString(weight), Quantity: qty}
}

func newMonitor(t *testing.T, c *stubCollector, funds []domain.Fund, opts ...Option) (*Monitor, snapshots.Store) {
	t.Helper()
	store, err := snapshots.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewMonitor(zap.NewNop(), c, store, calendar.New(), rebalance.NewAnalyzer(), funds, opts...)
	return m, store
}

// runOn collects as if on were the current market date.
func runOn(ctx context.Context, m *Monitor, fundID string, on date.Date) (Report, error) {
	m.today = func() date.Date { return on }
	return m.Run(ctx, fundID, on)
}

func TestMonitor_Run(t *testing.T) {
	c := newStubCollector()
	c.set("tf", friday, rec("A", "10", 100), rec("B", "5", 50), rec("C", "85", 1000))
	c.set("tf", monday, rec("A", "10.5", 100), rec("B", "4.0", 40), rec("D", "2", 10), rec("C", "83.5", 1000))

	m, store := newMonitor(t, c, []domain.Fund{{ID: "tf", URL: "http://x"}})
	ctx := context.Background()

	first, err := runOn(ctx, m, "tf", friday)
	require.NoError(t, err)
	assert.True(t, first.BaselineMissing)
	assert.Nil(t, first.Result)
	assert.Nil(t, first.BaselineDate)
	assert.Len(t, first.Snapshot.Records, 3)

	second, err := runOn(ctx, m, "tf", monday)
	require.NoError(t, err)
	assert.False(t, second.BaselineMissing)
	require.NotNil(t, second.Result)
	require.NotNil(t, second.BaselineDate)
	assert.Equal(t, friday, *second.BaselineDate)
	assert.NotEqual(t, first.RunID, second.RunID)

	require.Len(t, second.Result.NewStocks, 1)
	assert.Equal(t, "D", second.Result.NewStocks[0].StockName)
	require.Len(t, second.Result.DecreasedStocks, 1)
	assert.Equal(t, "B", second.Result.DecreasedStocks[0].StockName)

	stored, err := store.Load(ctx, "tf", monday)
	require.NoError(t, err)
	assert.True(t, stored.Equal(second.Snapshot))

	again, err := m.Analyze(ctx, "tf", monday)
	require.NoError(t, err)
	require.NotNil(t, again.Result)
	assert.Equal(t, second.Result.DriftRatio.String(), again.Result.DriftRatio.String())
	assert.Equal(t, 2, c.calls, "analyze must not fetch")
}

func TestMonitor_BaselineLookback(t *testing.T) {
	thursday := date.MustParse("2025-07-03")

	c := newStubCollector()
	c.set("tf", thursday, rec("A", "50", 1), rec("B", "50", 1))
	c.set("tf", monday, rec("A", "50", 1), rec("B", "50", 1))

	t.Run("default looks at the previous business day only", func(t *testing.T) {
		m, _ := newMonitor(t, c, []domain.Fund{{ID: "tf"}})
		_, err := runOn(context.Background(), m, "tf", thursday)
		require.NoError(t, err)

		report, err := runOn(context.Background(), m, "tf", monday)
		require.NoError(t, err)
		assert.True(t, report.BaselineMissing)
	})

	t.Run("wider lookback skips the gap", func(t *testing.T) {
		m, _ := newMonitor(t, c, []domain.Fund{{ID: "tf"}}, WithBaselineLookback(3))
		_, err := runOn(context.Background(), m, "tf", thursday)
		require.NoError(t, err)

		report, err := runOn(context.Background(), m, "tf", monday)
		require.NoError(t, err)
		require.NotNil(t, report.BaselineDate)
		assert.Equal(t, thursday, *report.BaselineDate)
		assert.False(t, report.Result.HasChanges())
	})
}

func TestMonitor_Errors(t *testing.T) {
	c := newStubCollector()
	collectErr := domain.NewCollectionError("broken", true, errors.New("503"))
	c.fail["broken"] = collectErr

	m, _ := newMonitor(t, c, []domain.Fund{{ID: "broken"}, {ID: "tf"}})
	ctx := context.Background()

	_, err := runOn(ctx, m, "unknown", monday)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = runOn(ctx, m, "broken", monday)
	assert.Equal(t, collectErr, err)

	_, err = m.Analyze(ctx, "tf", monday)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = m.Snapshot(ctx, "tf", monday)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMonitor_RunOnlyCollectsToday(t *testing.T) {
	c := newStubCollector()
	c.set("tf", friday, rec("A", "70", 1), rec("B", "30", 1))

	m, store := newMonitor(t, c, []domain.Fund{{ID: "tf"}}, WithClock(func() date.Date { return monday }))
	ctx := context.Background()

	stored, err := domain.NewHoldingSnapshot("tf", friday, []domain.HoldingRecord{rec("A", "60", 1), rec("B", "40", 1)})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, stored))

	_, err = m.Run(ctx, "tf", friday)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
	assert.Zero(t, c.calls, "nothing is fetched for a past date")

	loaded, err := store.Load(ctx, "tf", friday)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(stored))

	outcomes := m.RunAll(ctx, friday)
	require.Len(t, outcomes, 1)
	assert.True(t, errors.Is(outcomes[0].Err, domain.ErrInvalidInput))

	_, err = m.Run(ctx, "tf", monday.Add(1))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "future dates are rejected too")
}

func TestMonitor_RunAll(t *testing.T) {
	c := newStubCollector()
	funds := []domain.Fund{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	for _, f := range funds {
		c.set(f.ID, monday, rec("X", "60", 1), rec("Y", "40", 1))
	}
	c.fail["c"] = domain.NewCollectionError("c", false, errors.New("gone"))

	m, store := newMonitor(t, c, funds, WithParallelism(2), WithClock(func() date.Date { return monday }))
	outcomes := m.RunAll(context.Background(), monday)
	require.Len(t, outcomes, len(funds))

	for i, o := range outcomes {
		assert.Equal(t, funds[i].ID, o.Fund.ID)
		if o.Fund.ID == "c" {
			assert.True(t, errors.Is(o.Err, domain.ErrCollection))
			continue
		}
		require.NoError(t, o.Err)
		assert.True(t, o.Report.BaselineMissing)

		_, err := store.Load(context.Background(), o.Fund.ID, monday)
		assert.NoError(t, err)
	}
}

func TestMonitor_HistoryAndTrend(t *testing.T) {
	c := newStubCollector()
	days := []string{"2025-07-01", "2025-07-02", "2025-07-03"}
	weights := []string{"10", "12", "14"}
	for i, d := range days {
		c.set("tf", date.MustParse(d), rec("A", weights[i], 1), rec("B", "50", 1))
	}

	m, _ := newMonitor(t, c, []domain.Fund{{ID: "tf"}})
	for _, d := range days {
		_, err := runOn(context.Background(), m, "tf", date.MustParse(d))
		require.NoError(t, err)
	}

	h, err := m.History(context.Background(), "tf", 30)
	require.NoError(t, err)
	assert.Len(t, h.Dates(), 3)
	assert.Equal(t, 6, h.Len())

	trend, err := m.Trend(context.Background(), "tf", "A", 30, 2, history.SmoothingSMA)
	require.NoError(t, err)
	assert.Equal(t, history.DirectionRising, trend.Direction)

	_, err = m.History(context.Background(), "nope", 30)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMonitor_PublishesRuns(t *testing.T) {
	c := newStubCollector()
	c.set("tf", friday, rec("A", "60", 1), rec("B", "40", 2))
	c.set("tf", monday, rec("A", "60", 1), rec("B", "30", 1), rec("C", "10", 1))

	b := events.NewBroadcaster[events.RunCompleted](4)
	sub := b.Subscribe()
	m, _ := newMonitor(t, c, []domain.Fund{{ID: "tf"}}, WithEvents(b))

	_, err := runOn(context.Background(), m, "tf", friday)
	require.NoError(t, err)
	report, err := runOn(context.Background(), m, "tf", monday)
	require.NoError(t, err)

	require.Len(t, sub, 2)
	first := <-sub
	assert.True(t, first.BaselineMissing)
	assert.Empty(t, first.BaselineDate)

	second := <-sub
	assert.Equal(t, report.RunID.String(), second.RunID)
	assert.Equal(t, "2025-07-04", second.BaselineDate)
	assert.Equal(t, 1, second.New)
	assert.Equal(t, 1, second.Decreased)

	_, err = m.Analyze(context.Background(), "tf", monday)
	require.NoError(t, err)
	assert.Empty(t, sub, "analyze does not publish")
}
