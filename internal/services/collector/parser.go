package collector

import (
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/vadiminshakov/fundwatch/internal/domain"
)

var (
	nameHeaders     = []string{"종목명", "name", "holding", "security"}
	weightHeaders   = []string{"비중", "weight"}
	quantityHeaders = []string{"수량", "주식수", "quantity", "shares"}

	// summary rows some disclosure tables append
	totalRows = []string{"합계", "총계", "total"}
)

type columns struct {
	name, weight, quantity int
}

// ParseHoldingsTable extracts holdings from the first HTML table carrying
// name and weight columns. The quantity column is optional.
func ParseHoldingsTable(r io.Reader) ([]domain.HoldingRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse disclosure page")
	}

	lastErr := errors.New("no holdings table found")
	for table := range elements(doc, "table") {
		rows := tableRows(table)
		for i, header := range rows {
			cols, ok := detectColumns(header)
			if !ok {
				continue
			}
			records, err := parseRows(rows[i+1:], cols)
			if err == nil {
				return records, nil
			}
			lastErr = err
			break
		}
	}

	return nil, lastErr
}

func detectColumns(cells []string) (columns, bool) {
	cols := columns{
		name:     findColumn(cells, nameHeaders),
		weight:   findColumn(cells, weightHeaders),
		quantity: findColumn(cells, quantityHeaders),
	}
	if cols.name < 0 || cols.weight < 0 || cols.name == cols.weight {
		return cols, false
	}
	// a layout cell wrapping the whole table matches every alias at once
	if cols.quantity == cols.name || cols.quantity == cols.weight {
		cols.quantity = -1
	}
	return cols, true
}

func findColumn(cells []string, aliases []string) int {
	for _, alias := range aliases {
		for i, c := range cells {
			if strings.Contains(strings.ToLower(c), alias) {
				return i
			}
		}
	}
	return -1
}

func parseRows(rows [][]string, cols columns) ([]domain.HoldingRecord, error) {
	need := max(cols.name, cols.weight, cols.quantity) + 1

	records := make([]domain.HoldingRecord, 0, len(rows))
	for _, cells := range rows {
		if len(cells) < need {
			continue
		}
		name := cells[cols.name]
		if name == "" || slices.Contains(totalRows, strings.ToLower(name)) {
			continue
		}

		weight, err := parseWeight(cells[cols.weight])
		if err != nil {
			return nil, errors.Wrapf(err, "weight of %q", name)
		}

		var quantity int64
		if cols.quantity >= 0 {
			quantity, err = parseQuantity(cells[cols.quantity])
			if err != nil {
				return nil, errors.Wrapf(err, "quantity of %q", name)
			}
		}

		records = append(records, domain.HoldingRecord{StockName: name, Weight: weight, Quantity: quantity})
	}

	if len(records) == 0 {
		return nil, errors.New("holdings table has no rows")
	}
	return records, nil
}

func cleanNumber(s string) string {
	s = strings.NewReplacer(",", "", "%", "", "주", "", " ", "").Replace(s)
	return strings.TrimSpace(s)
}

func parseWeight(s string) (decimal.Decimal, error) {
	s = cleanNumber(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Errorf("malformed number %q", s)
	}
	return d, nil
}

func parseQuantity(s string) (int64, error) {
	d, err := parseWeight(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

// elements yields every element node with the given tag, depth first.
func elements(n *html.Node, tag string) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		var walk func(*html.Node) bool
		walk = func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.Data == tag {
				if !yield(n) {
					return false
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(n)
	}
}

// tableRows returns the text of th/td cells of every row of the table,
// rows of nested tables excluded.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "table":
				continue
			case "tr":
				var cells []string
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
						cells = append(cells, text(td))
					}
				}
				rows = append(rows, cells)
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
