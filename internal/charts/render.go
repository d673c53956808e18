// Package charts renders computed series to PNG for chat delivery.
package charts

import (
	"errors"
	"fmt"
	"math"
	"strings"

	gocharts "github.com/vicanso/go-charts/v2"

	"equityLens/internal/analytics"
	"equityLens/internal/market"
	"equityLens/internal/sentiment"
)

var ErrNothingToDraw = errors.New("nothing to draw")

// Renderer draws charts and memoises them in a Cache.
type Renderer struct {
	cache *Cache
}

func NewRenderer(cache *Cache) *Renderer {
	return &Renderer{cache: cache}
}

// Cached returns the cached image for key or renders and stores it.
func (r *Renderer) Cached(key string, render func() ([]byte, error)) ([]byte, error) {
	if r.cache != nil {
		if img, ok := r.cache.Get(key); ok {
			return img, nil
		}
	}
	img, err := render()
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, img)
	}
	return img, nil
}

// Invalidate drops every cached image.
func (r *Renderer) Invalidate() {
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

func splitFor(n int) int {
	split := n / 6
	if split < 3 {
		split = 3
	}
	if split > 10 {
		split = 10
	}
	return split
}

func paddedRange(cols [][]float64) (float64, float64) {
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, c := range cols {
		for _, v := range c {
			yMin = math.Min(yMin, v)
			yMax = math.Max(yMax, v)
		}
	}
	pad := (yMax - yMin) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(yMax)*0.002, 0.01)
	}
	return yMin - pad, yMax + pad
}

// TimeSeries draws one line per ticker of f.
func TimeSeries(title string, f market.Frame) ([]byte, error) {
	if len(f.Tickers) == 0 || len(f.Dates) < 2 {
		return nil, ErrNothingToDraw
	}
	xLabels := make([]string, len(f.Dates))
	for i, d := range f.Dates {
		xLabels[i] = d.Format("2006-01-02")
	}
	yMin, yMax := paddedRange(f.Columns)
	p, err := gocharts.LineRender(
		f.Columns,
		gocharts.TitleTextOptionFunc(title, strings.Join(f.Tickers, ", ")),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitFor(len(xLabels)),
			BoundaryGap: gocharts.FalseFlag(),
		}),
		gocharts.YAxisOptionFunc(gocharts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		gocharts.LegendOptionFunc(gocharts.LegendOption{Data: f.Tickers, Top: gocharts.PositionTop}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(900),
		gocharts.HeightOptionFunc(500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return p.Bytes()
}

// LabelDistribution draws the share of each sentiment label.
func LabelDistribution(title string, counts []sentiment.LabelCount) ([]byte, error) {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total == 0 {
		return nil, ErrNothingToDraw
	}
	values := make([]float64, len(counts))
	labels := make([]string, len(counts))
	for i, c := range counts {
		values[i] = float64(c.Count)
		labels[i] = fmt.Sprintf("%s (%.1f%%)", c.Label, 100*float64(c.Count)/float64(total))
	}
	p, err := gocharts.PieRender(
		values,
		gocharts.TitleTextOptionFunc(title),
		gocharts.LegendOptionFunc(gocharts.LegendOption{
			Data: labels,
			Top:  gocharts.PositionTop,
		}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(800),
		gocharts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return p.Bytes()
}

// CovariancePairs draws the ranked pairs as bars.
func CovariancePairs(title string, pairs []analytics.Pair) ([]byte, error) {
	if len(pairs) == 0 {
		return nil, ErrNothingToDraw
	}
	values := make([]float64, len(pairs))
	labels := make([]string, len(pairs))
	for i, p := range pairs {
		values[i] = p.Cov * 1e4
		labels[i] = p.A + "/" + p.B
	}
	p, err := gocharts.BarRender(
		[][]float64{values},
		gocharts.TitleTextOptionFunc(title, "daily return covariance x 1e-4"),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{Data: labels}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(900),
		gocharts.HeightOptionFunc(500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return p.Bytes()
}

// CapitalMarketLine draws the sampled CML. The subtitle carries the
// tangency point and the size of each side of the partition.
func CapitalMarketLine(f analytics.Frontier) ([]byte, error) {
	if f.Empty() || len(f.Line) < 2 {
		return nil, ErrNothingToDraw
	}
	xLabels := make([]string, len(f.Line))
	line := make([]float64, len(f.Line))
	for i, pt := range f.Line {
		xLabels[i] = fmt.Sprintf("%.3f", pt.Vol)
		line[i] = pt.Ret
	}
	yMin, yMax := paddedRange([][]float64{line})
	subtitle := fmt.Sprintf("tangency %s  vol %.3f  ret %.3f  sharpe %.2f  lending %d  borrowing %d",
		f.Tangency.Ticker, f.Tangency.Volatility, f.Tangency.AnnualReturn, f.Tangency.Sharpe,
		len(f.Lending), len(f.Borrowing))
	p, err := gocharts.LineRender(
		[][]float64{line},
		gocharts.TitleTextOptionFunc("Capital Market Line", subtitle),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{
			Data:        xLabels,
			SplitNumber: 8,
			BoundaryGap: gocharts.FalseFlag(),
		}),
		gocharts.YAxisOptionFunc(gocharts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(900),
		gocharts.HeightOptionFunc(500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return p.Bytes()
}
