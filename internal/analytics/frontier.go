package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CMLSamples is the number of points sampled along the visible CML.
const CMLSamples = 200

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds is a viewport in (volatility, return) space.
type Bounds struct {
	Vol Range
	Ret Range
}

// RestrictToViewport keeps the records whose (volatility, return) lies
// inside b, ordered by ticker.
func RestrictToViewport(records []Record, b Bounds) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if b.Vol.Contains(r.Volatility) && b.Ret.Contains(r.AnnualReturn) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// FullBounds is the home viewport: the extent of all records padded by 5% of
// each span. It reports false when records is empty.
func FullBounds(records []Record) (Bounds, bool) {
	if len(records) == 0 {
		return Bounds{}, false
	}
	b := Bounds{
		Vol: Range{Min: math.Inf(1), Max: math.Inf(-1)},
		Ret: Range{Min: math.Inf(1), Max: math.Inf(-1)},
	}
	for _, r := range records {
		b.Vol.Min = math.Min(b.Vol.Min, r.Volatility)
		b.Vol.Max = math.Max(b.Vol.Max, r.Volatility)
		b.Ret.Min = math.Min(b.Ret.Min, r.AnnualReturn)
		b.Ret.Max = math.Max(b.Ret.Max, r.AnnualReturn)
	}
	pad := func(r Range) Range {
		p := 0.05 * (r.Max - r.Min)
		return Range{Min: r.Min - p, Max: r.Max + p}
	}
	return Bounds{Vol: pad(b.Vol), Ret: pad(b.Ret)}, true
}

// FilterRanges are the independent table filters.
type FilterRanges struct {
	Sharpe Range
	Vol    Range
	Ret    Range
}

// DefaultFilter matches the initial table filter: Sharpe 0.5-1.5,
// volatility 0-1, return 0-1.
func DefaultFilter() FilterRanges {
	return FilterRanges{
		Sharpe: Range{Min: 0.5, Max: 1.5},
		Vol:    Range{Min: 0, Max: 1},
		Ret:    Range{Min: 0, Max: 1},
	}
}

// Apply keeps records inside all three ranges. Records without a Sharpe
// ratio never pass.
func (f FilterRanges) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.HasSharpe() && f.Sharpe.Contains(r.Sharpe) && f.Vol.Contains(r.Volatility) && f.Ret.Contains(r.AnnualReturn) {
			out = append(out, r)
		}
	}
	return out
}

// TableMode selects which records a table shows.
type TableMode int

const (
	// Local shows what is visible: the viewport subset, or the filtered
	// records when no viewport has been set.
	Local TableMode = iota
	Global
)

// Table returns the rows for a table in the given mode.
func Table(records []Record, mode TableMode, viewport *Bounds, filter FilterRanges) []Record {
	if mode == Global {
		return records
	}
	if viewport != nil {
		return RestrictToViewport(records, *viewport)
	}
	return filter.Apply(records)
}

// CMLPoint is one sample of the Capital Market Line.
type CMLPoint struct {
	Vol float64
	Ret float64
}

// Frontier is the result of analyzing a viewport.
type Frontier struct {
	Tangency  *Record
	Slope     float64
	Line      []CMLPoint
	Lending   []string
	Borrowing []string
}

// Empty reports whether no tangency point was found.
func (f Frontier) Empty() bool { return f.Tangency == nil }

// At evaluates the CML at volatility x.
func (f Frontier) At(x float64) float64 {
	if f.Tangency == nil {
		return math.NaN()
	}
	return RiskFreeRate + f.Slope*x
}

// LendingSegment is the part of the sampled CML at or below the tangency volatility.
func (f Frontier) LendingSegment() []CMLPoint {
	var out []CMLPoint
	for _, p := range f.Line {
		if p.Vol <= f.Tangency.Volatility {
			out = append(out, p)
		}
	}
	return out
}

// BorrowingSegment is the part of the sampled CML above the tangency volatility.
func (f Frontier) BorrowingSegment() []CMLPoint {
	var out []CMLPoint
	for _, p := range f.Line {
		if p.Vol > f.Tangency.Volatility {
			out = append(out, p)
		}
	}
	return out
}

// Position labels a ticker relative to the CML.
type Position string

const (
	Lending   Position = "Lending"
	Borrowing Position = "Borrowing"
	Normal    Position = "Normal"
)

func (f Frontier) Position(ticker string) Position {
	for _, t := range f.Lending {
		if t == ticker {
			return Lending
		}
	}
	for _, t := range f.Borrowing {
		if t == ticker {
			return Borrowing
		}
	}
	return Normal
}

// Analyze finds the tangency portfolio among the records visible in b,
// samples the CML over the visible volatility range and partitions the
// visible tickers into lending and borrowing. Records are scanned in ticker
// order and the first maximum Sharpe wins, so results are reproducible.
// Records without a defined Sharpe ratio are ignored. An empty viewport
// yields an empty Frontier.
func Analyze(records []Record, b Bounds) Frontier {
	visible := RestrictToViewport(WithSharpe(records), b)

	var tangency *Record
	for i := range visible {
		r := visible[i]
		if !r.HasSharpe() || r.Volatility <= 0 {
			continue
		}
		if tangency == nil || r.Sharpe > tangency.Sharpe {
			tangency = &visible[i]
		}
	}
	if tangency == nil {
		return Frontier{}
	}
	t := *tangency
	f := Frontier{
		Tangency: &t,
		Slope:    (t.AnnualReturn - RiskFreeRate) / t.Volatility,
	}

	xs := make([]float64, CMLSamples)
	floats.Span(xs, b.Vol.Min, b.Vol.Max)
	f.Line = make([]CMLPoint, len(xs))
	for i, x := range xs {
		f.Line[i] = CMLPoint{Vol: x, Ret: f.At(x)}
	}

	for _, r := range visible {
		if r.Volatility <= t.Volatility {
			f.Lending = append(f.Lending, r.Ticker)
		} else {
			f.Borrowing = append(f.Borrowing, r.Ticker)
		}
	}
	return f
}

// Nearest returns the record closest to (vol, ret) if it lies within
// maxDist. Ties go to the alphabetically first ticker.
func Nearest(records []Record, vol, ret, maxDist float64) (Record, bool) {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	best, bestDist := -1, math.Inf(1)
	for i, r := range sorted {
		dist := math.Hypot(r.Volatility-vol, r.AnnualReturn-ret)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 || bestDist > maxDist {
		return Record{}, false
	}
	return sorted[best], true
}
