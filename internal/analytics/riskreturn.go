package analytics

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"equityLens/internal/market"
)

const (
	// RiskFreeRate is the annual risk-free rate used for every Sharpe ratio
	// and for the Capital Market Line intercept.
	RiskFreeRate = 0.02
	// TradingDays is the annualization factor for daily returns.
	TradingDays = 252.0
)

// Record holds the annualized statistics of one ticker.
type Record struct {
	Ticker       string
	AnnualReturn float64 // mean daily return * 252
	Volatility   float64 // sample std of daily returns * sqrt(252)
	Sharpe       float64 // NaN when Volatility is zero
	Observations int     // aligned price observations used
}

// HasSharpe reports whether the Sharpe ratio is defined.
func (r Record) HasSharpe() bool {
	return !math.IsNaN(r.Sharpe) && !math.IsInf(r.Sharpe, 0)
}

// Window restricts computations to [Start, End]; zero values are open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Engine computes per-ticker risk/return records.
type Engine struct {
	log zerolog.Logger
}

func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "risk_return").Logger()}
}

// Returns computes simple returns p[t]/p[t-1]-1. The first observation has no
// return, so the result is one element shorter than prices.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}

// Annualize turns daily returns into annual return, volatility and Sharpe.
// Volatility is NaN when fewer than two returns are available.
func Annualize(returns []float64) (annualReturn, volatility, sharpe float64) {
	if len(returns) < 2 {
		nan := math.NaN()
		if len(returns) == 1 {
			return returns[0] * TradingDays, nan, nan
		}
		return nan, nan, nan
	}
	mean, std := stat.MeanStdDev(returns, nil)
	annualReturn = mean * TradingDays
	volatility = std * math.Sqrt(TradingDays)
	if volatility == 0 {
		return annualReturn, volatility, math.NaN()
	}
	return annualReturn, volatility, (annualReturn - RiskFreeRate) / volatility
}

// Compute returns one record per ticker with enough data in w, sorted by
// ticker. Tickers with fewer than two observations in the window are
// excluded; the remaining series are aligned on their common dates.
func (e *Engine) Compute(store *market.Store, w Window) []Record {
	if store == nil {
		return nil
	}
	win := store.Between(w.Start, w.End)

	var eligible []string
	for _, t := range win.Tickers() {
		pts, _ := win.Series(t)
		if len(pts) < 2 {
			e.log.Debug().Str("ticker", t).Int("observations", len(pts)).Msg("excluded: insufficient data")
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return nil
	}

	frame := win.Aligned(eligible)
	out := make([]Record, 0, len(frame.Tickers))
	for i, t := range frame.Tickers {
		ret, vol, sharpe := Annualize(Returns(frame.Columns[i]))
		if math.IsNaN(vol) {
			e.log.Debug().Str("ticker", t).Int("aligned", len(frame.Dates)).Msg("excluded: volatility undefined")
			continue
		}
		out = append(out, Record{
			Ticker:       t,
			AnnualReturn: ret,
			Volatility:   vol,
			Sharpe:       sharpe,
			Observations: len(frame.Dates),
		})
	}
	e.log.Debug().Int("tickers", len(out)).Int("aligned_dates", len(frame.Dates)).Msg("risk/return computed")
	return out
}

// WithSharpe drops records whose Sharpe ratio is undefined.
func WithSharpe(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.HasSharpe() {
			out = append(out, r)
		}
	}
	return out
}
