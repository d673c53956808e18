package analytics

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"equityLens/internal/market"
)

// TopPairs is how many pairs are ranked at each end.
const TopPairs = 10

// Pair is one off-diagonal covariance entry with A before B in ticker order.
type Pair struct {
	A, B string
	Cov  float64
}

// CovarianceResult is the sample covariance of daily returns and its ranked pairs.
type CovarianceResult struct {
	Tickers []string
	Matrix  *mat.SymDense // nil when fewer than two tickers
	Highest []Pair        // descending
	Lowest  []Pair        // ascending
}

// Empty reports whether no matrix could be computed.
func (c CovarianceResult) Empty() bool { return c.Matrix == nil }

// At returns cov(a, b).
func (c CovarianceResult) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, t := range c.Tickers {
		if t == a {
			i = k
		}
		if t == b {
			j = k
		}
	}
	if i < 0 || j < 0 || c.Matrix == nil {
		return 0, false
	}
	return c.Matrix.At(i, j), true
}

// Covariance computes the covariance matrix of daily returns for subset (all
// stored tickers when subset is nil) over their common dates, and ranks
// the off-diagonal pairs. A non-nil empty subset, fewer than two usable
// tickers, or fewer than two return rows produce an empty result.
func Covariance(store *market.Store, subset []string) CovarianceResult {
	if store == nil || (subset != nil && len(subset) == 0) {
		return CovarianceResult{}
	}
	frame := store.Aligned(subset)
	n := len(frame.Tickers)
	rows := len(frame.Dates) - 1
	if n < 2 || rows < 2 {
		return CovarianceResult{Tickers: frame.Tickers}
	}

	x := mat.NewDense(rows, n, nil)
	for j, col := range frame.Columns {
		for i, r := range Returns(col) {
			x.Set(i, j, r)
		}
	}
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, x, nil)

	pairs := make([]Pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, Pair{A: frame.Tickers[i], B: frame.Tickers[j], Cov: cov.At(i, j)})
		}
	}
	return CovarianceResult{
		Tickers: frame.Tickers,
		Matrix:  cov,
		Highest: rankPairs(pairs, true),
		Lowest:  rankPairs(pairs, false),
	}
}

// rankPairs orders pairs by covariance keeping scan order among ties, and
// returns at most TopPairs of them.
func rankPairs(pairs []Pair, descending bool) []Pair {
	sorted := append([]Pair(nil), pairs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Cov > sorted[j].Cov
		}
		return sorted[i].Cov < sorted[j].Cov
	})
	if len(sorted) > TopPairs {
		sorted = sorted[:TopPairs]
	}
	return sorted
}
