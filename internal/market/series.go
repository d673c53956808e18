package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	// ErrMalformedTable is returned when a price table cannot be interpreted.
	ErrMalformedTable = errors.New("malformed price table")
	// ErrNoData is returned when a fetch produced no usable observations.
	ErrNoData = errors.New("no data")
)

// Point is one adjusted-close observation.
type Point struct {
	Date  time.Time
	Close float64
}

// Frame is a set of price columns sharing one date index.
type Frame struct {
	Dates   []time.Time
	Tickers []string
	Columns [][]float64 // Columns[i] belongs to Tickers[i], len == len(Dates)
}

// Column returns the values for ticker, or nil when absent.
func (f Frame) Column(ticker string) []float64 {
	for i, t := range f.Tickers {
		if t == ticker {
			return f.Columns[i]
		}
	}
	return nil
}

// Store holds adjusted-close series keyed by ticker. Dates within a series are
// strictly increasing. A Store is not safe for concurrent mutation.
type Store struct {
	series map[string][]Point
}

func NewStore() *Store {
	return &Store{series: map[string][]Point{}}
}

func normTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Set replaces the series for ticker. Points with NaN, infinite or
// non-positive closes are dropped as missing. Duplicate dates are rejected.
func (s *Store) Set(ticker string, pts []Point) error {
	ticker = normTicker(ticker)
	if ticker == "" {
		return fmt.Errorf("%w: empty ticker", ErrMalformedTable)
	}
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			continue
		}
		out = append(out, Point{Date: day(p.Date), Close: p.Close})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := 1; i < len(out); i++ {
		if out[i].Date.Equal(out[i-1].Date) {
			return fmt.Errorf("%w: duplicate date %s for %s", ErrMalformedTable, out[i].Date.Format("2006-01-02"), ticker)
		}
	}
	s.series[ticker] = out
	return nil
}

// Merge copies every series of other into s, replacing same-ticker series.
func (s *Store) Merge(other *Store) {
	if other == nil {
		return
	}
	for t, pts := range other.series {
		cp := make([]Point, len(pts))
		copy(cp, pts)
		s.series[t] = cp
	}
}

// Tickers returns the stored tickers in alphabetical order.
func (s *Store) Tickers() []string {
	out := make([]string, 0, len(s.series))
	for t := range s.series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Len() int { return len(s.series) }

// Has reports whether ticker has a series.
func (s *Store) Has(ticker string) bool {
	_, ok := s.series[normTicker(ticker)]
	return ok
}

// Series returns a copy of the points stored for ticker.
func (s *Store) Series(ticker string) ([]Point, bool) {
	pts, ok := s.series[normTicker(ticker)]
	if !ok {
		return nil, false
	}
	cp := make([]Point, len(pts))
	copy(cp, pts)
	return cp, true
}

// Between returns a new store restricted to [start, end]. A zero bound is open.
func (s *Store) Between(start, end time.Time) *Store {
	out := NewStore()
	for t, pts := range s.series {
		kept := make([]Point, 0, len(pts))
		for _, p := range pts {
			if !start.IsZero() && p.Date.Before(day(start)) {
				continue
			}
			if !end.IsZero() && p.Date.After(day(end)) {
				continue
			}
			kept = append(kept, p)
		}
		out.series[t] = kept
	}
	return out
}

// Subset returns a new store holding only the named tickers. Unknown tickers
// are ignored. A nil or empty list keeps everything.
func (s *Store) Subset(tickers []string) *Store {
	if len(tickers) == 0 {
		return s.Between(time.Time{}, time.Time{})
	}
	out := NewStore()
	for _, t := range tickers {
		t = normTicker(t)
		if pts, ok := s.series[t]; ok {
			cp := make([]Point, len(pts))
			copy(cp, pts)
			out.series[t] = cp
		}
	}
	return out
}

// Aligned builds a frame over the intersection of the tickers' dates. Missing
// dates are dropped, never interpolated. Tickers default to all stored ones.
func (s *Store) Aligned(tickers []string) Frame {
	if len(tickers) == 0 {
		tickers = s.Tickers()
	}
	var names []string
	for _, t := range tickers {
		t = normTicker(t)
		if _, ok := s.series[t]; ok {
			names = append(names, t)
		}
	}
	sort.Strings(names)
	names = dedupSorted(names)
	if len(names) == 0 {
		return Frame{}
	}

	counts := map[time.Time]int{}
	for _, t := range names {
		for _, p := range s.series[t] {
			counts[p.Date]++
		}
	}
	var dates []time.Time
	for d, c := range counts {
		if c == len(names) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}
	cols := make([][]float64, len(names))
	for i, t := range names {
		col := make([]float64, len(dates))
		for _, p := range s.series[t] {
			if j, ok := index[p.Date]; ok {
				col[j] = p.Close
			}
		}
		cols[i] = col
	}
	return Frame{Dates: dates, Tickers: names, Columns: cols}
}

func dedupSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && s == in[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
