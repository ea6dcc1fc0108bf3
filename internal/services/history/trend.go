package history

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
	"github.com/vadiminshakov/fundwatch/pkg/indicators"
)

// Direction qualitative direction of a holding's weight.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionFlat    Direction = "flat"
)

// Smoothing moving average used for trend detection.
type Smoothing string

const (
	SmoothingSMA Smoothing = "sma"
	SmoothingEMA Smoothing = "ema"
)

// flatBand weight distance from the average still considered flat, in percentage points.
var flatBand = decimal.RequireFromString("0.05")

// Trend weight series of one holding with its moving average.
type Trend struct {
	StockName string            `json:"stock_name"`
	Dates     []date.Date       `json:"dates"`
	Weights   []decimal.Decimal `json:"weights"`
	// Average moving average aligned with the tail of Weights.
	Average   []decimal.Decimal `json:"average"`
	Window    int               `json:"window"`
	Smoothing Smoothing         `json:"smoothing"`
	Direction Direction         `json:"direction"`
}

// Latest returns the most recent weight.
func (t Trend) Latest() (decimal.Decimal, bool) {
	if len(t.Weights) == 0 {
		return decimal.Zero, false
	}
	return t.Weights[len(t.Weights)-1], true
}

// Trend computes the weight trend of a stock over the history window.
// When the series is shorter than the window the window shrinks to the series length.
func (h History) Trend(stock string, window int, smoothing Smoothing) (Trend, error) {
	series := h.Series(stock)
	if len(series) == 0 {
		return Trend{}, errors.Wrapf(domain.ErrNotFound, "stock %q has no history in fund %s", stock, h.FundID)
	}
	if window <= 0 {
		return Trend{}, errors.Wrapf(domain.ErrInvalidInput, "trend window must be positive, got %d", window)
	}
	window = min(window, len(series))

	t := Trend{StockName: stock, Window: window, Smoothing: smoothing}
	for _, p := range series {
		t.Dates = append(t.Dates, p.Date)
		t.Weights = append(t.Weights, p.Weight)
	}

	var err error
	switch smoothing {
	case SmoothingEMA:
		t.Average, err = indicators.CalculateEMA(t.Weights, window)
	case SmoothingSMA, "":
		t.Smoothing = SmoothingSMA
		t.Average, err = indicators.CalculateSMA(t.Weights, window)
	default:
		return Trend{}, errors.Wrapf(domain.ErrInvalidInput, "unknown smoothing %q", smoothing)
	}
	if err != nil {
		return Trend{}, errors.Wrapf(err, "smooth weights of %q", stock)
	}

	t.Direction = direction(t.Weights, t.Average)
	return t, nil
}

func direction(weights, average []decimal.Decimal) Direction {
	if len(weights) < 2 || len(average) == 0 {
		return DirectionFlat
	}
	diff := weights[len(weights)-1].Sub(average[len(average)-1])
	switch {
	case diff.GreaterThan(flatBand):
		return DirectionRising
	case diff.LessThan(flatBand.Neg()):
		return DirectionFalling
	default:
		return DirectionFlat
	}
}
