// Package report renders monitoring results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/fundwatch/internal/app"
	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	rising    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	falling   = lipgloss.AdaptiveColor{Light: "#D1495B", Dark: "#FF6B6B"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	noteStyle    = lipgloss.NewStyle().Foreground(subtle)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Rebalance writes the report of one run, showing at most top entries per section.
func Rebalance(w io.Writer, r app.Report, top int) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s", r.Fund, r.Date)))
	b.WriteByte('\n')

	if r.BaselineMissing || r.Result == nil {
		b.WriteString(noteStyle.Render(fmt.Sprintf("no earlier snapshot stored, %d holdings recorded", len(r.Snapshot.Records))))
		b.WriteByte('\n')
		_, err := io.WriteString(w, b.String())
		return err
	}

	res := r.Result
	b.WriteString(noteStyle.Render(fmt.Sprintf("baseline %s  drift ratio %s (%s, %d calibration positions)",
		res.BaselineDate, res.DriftRatio.StringFixed(4), res.Method, res.CalibrationSize)))
	b.WriteByte('\n')
	if res.Degraded {
		b.WriteString(noteStyle.Render("no untraded position to calibrate on, deltas include price drift"))
		b.WriteByte('\n')
	}

	if !res.HasChanges() {
		b.WriteString(sectionStyle.Render("no position changes"))
		b.WriteByte('\n')
		_, err := io.WriteString(w, b.String())
		return err
	}

	sections := []struct {
		title   string
		changes []domain.StockChange
	}{
		{"New", limit(res.NewStocks, top)},
		{"Removed", limit(res.RemovedStocks, top)},
		{"Increased", res.TopIncreased(top)},
		{"Decreased", res.TopDecreased(top)},
	}
	for _, s := range sections {
		if len(s.changes) == 0 {
			continue
		}
		b.WriteString(sectionStyle.Render(s.title))
		b.WriteByte('\n')
		b.WriteString(changesTable(s.changes).String())
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Funds writes the fund catalogue.
func Funds(w io.Writer, funds []domain.Fund) error {
	rows := make([][]string, 0, len(funds))
	for _, f := range funds {
		rows = append(rows, []string{f.ID, f.Name, f.Category})
	}
	_, err := fmt.Fprintln(w, newTable("ID", "Fund", "Category").Rows(rows...).String())
	return err
}

// History writes the latest weights of every holding in the window.
func History(w io.Writer, h history.History) error {
	dates := h.Dates()
	if len(dates) == 0 {
		_, err := fmt.Fprintln(w, noteStyle.Render("no stored snapshots"))
		return err
	}

	rows := make([][]string, 0)
	for _, stock := range h.Stocks() {
		series := h.Series(stock)
		first, last := series[0], series[len(series)-1]
		rows = append(rows, []string{
			stock,
			strconv.Itoa(len(series)),
			pct(first.Weight),
			pct(last.Weight),
			signed(last.Weight.Sub(first.Weight)),
		})
	}

	title := titleStyle.Render(fmt.Sprintf("%s  %s .. %s (%d snapshots)", h.FundID, dates[0], dates[len(dates)-1], len(dates)))
	t := newTable("Holding", "Days", "First", "Last", "Change").Rows(rows...)
	_, err := fmt.Fprintf(w, "%s\n%s\n", title, t.String())
	return err
}

// Trend writes the weight series of one holding next to its moving average.
func Trend(w io.Writer, tr history.Trend) error {
	offset := len(tr.Weights) - len(tr.Average)
	rows := make([][]string, 0, len(tr.Weights))
	for i, weight := range tr.Weights {
		avg := ""
		if i >= offset {
			avg = pct(tr.Average[i-offset])
		}
		rows = append(rows, []string{tr.Dates[i].String(), pct(weight), avg})
	}

	title := titleStyle.Render(fmt.Sprintf("%s  %s(%d)  %s", tr.StockName, strings.ToUpper(string(tr.Smoothing)), tr.Window, tr.Direction))
	t := newTable("Date", "Weight", "Average").Rows(rows...)
	_, err := fmt.Fprintf(w, "%s\n%s\n", title, t.String())
	return err
}

func changesTable(changes []domain.StockChange) *table.Table {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{
			c.StockName,
			pct(c.WeightPrev),
			pct(c.WeightToday),
			signed(c.RawDelta()),
			signed(c.PureWeightDelta),
			quantity(c.QuantityPrev, c.QuantityToday),
		})
	}

	return newTable("Holding", "Prev", "Today", "Raw", "Pure", "Quantity").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 4 && row >= 0 && row < len(changes) {
				switch changes[row].PureWeightDelta.Sign() {
				case 1:
					return cellStyle.Foreground(rising)
				case -1:
					return cellStyle.Foreground(falling)
				}
			}
			return cellStyle
		})
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func limit(changes []domain.StockChange, n int) []domain.StockChange {
	if n > 0 && len(changes) > n {
		return changes[:n]
	}
	return changes
}

func pct(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func quantity(prev, today int64) string {
	if prev == today {
		return strconv.FormatInt(today, 10)
	}
	return fmt.Sprintf("%d → %d", prev, today)
}
