package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Frequency is a resampling bucket size for the time-series view.
type Frequency int

const (
	Daily Frequency = iota
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "daily"
	}
}

// ParseFrequency accepts daily|monthly|yearly and the short forms d|m|y.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "day", "daily":
		return Daily, nil
	case "m", "month", "monthly":
		return Monthly, nil
	case "y", "year", "yearly":
		return Yearly, nil
	}
	return Daily, fmt.Errorf("unknown frequency %q (use daily, monthly or yearly)", s)
}

// bucket returns the label of the bucket containing d: the calendar day, the
// last day of the month, or the last day of the year.
func (f Frequency) bucket(d time.Time) time.Time {
	switch f {
	case Monthly:
		return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(d.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	default:
		return day(d)
	}
}

func (f Frequency) next(label time.Time) time.Time {
	switch f {
	case Monthly:
		return time.Date(label.Year(), label.Month()+2, 0, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(label.Year()+1, 12, 31, 0, 0, 0, 0, time.UTC)
	default:
		return label.AddDate(0, 0, 1)
	}
}

// Resample builds the time-series view for tickers within [start, end]: the
// last observation of each bucket is kept, empty buckets are back-filled from
// the next bucket, and trailing gaps take the last known value. Unlike
// Aligned, dates are not intersected.
func (s *Store) Resample(tickers []string, freq Frequency, start, end time.Time) Frame {
	win := s.Between(start, end).Subset(tickers)
	names := win.Tickers()
	if len(names) == 0 {
		return Frame{}
	}

	var first, last time.Time
	for _, t := range names {
		pts := win.series[t]
		if len(pts) == 0 {
			continue
		}
		if first.IsZero() || pts[0].Date.Before(first) {
			first = pts[0].Date
		}
		if last.IsZero() || pts[len(pts)-1].Date.After(last) {
			last = pts[len(pts)-1].Date
		}
	}
	if first.IsZero() {
		return Frame{}
	}

	var labels []time.Time
	for b := freq.bucket(first); !b.After(freq.bucket(last)); b = freq.next(b) {
		labels = append(labels, b)
	}
	index := make(map[time.Time]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	cols := make([][]float64, len(names))
	for i, t := range names {
		col := make([]float64, len(labels))
		for j := range col {
			col[j] = math.NaN()
		}
		// points are date-ordered, so the last write per bucket wins
		for _, p := range win.series[t] {
			col[index[freq.bucket(p.Date)]] = p.Close
		}
		backFill(col)
		cols[i] = col
	}
	return Frame{Dates: labels, Tickers: names, Columns: cols}
}

func backFill(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
		} else {
			next = col[i]
		}
	}
	prev := math.NaN()
	for i := range col {
		if math.IsNaN(col[i]) {
			col[i] = prev
		} else {
			prev = col[i]
		}
	}
}

// Normalize rescales every column of f to [0,1] by its own min and max.
// Constant columns become all zeros.
func Normalize(f Frame) Frame {
	out := Frame{Dates: f.Dates, Tickers: f.Tickers, Columns: make([][]float64, len(f.Columns))}
	for i, col := range f.Columns {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range col {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		norm := make([]float64, len(col))
		span := hi - lo
		for j, v := range col {
			switch {
			case math.IsNaN(v):
				norm[j] = v
			case span <= 0:
				norm[j] = 0
			default:
				norm[j] = (v - lo) / span
			}
		}
		out.Columns[i] = norm
	}
	return out
}

// sortedUnique is used by loaders that accumulate tickers in arbitrary order.
func sortedUnique(in []string) []string {
	cp := append([]string(nil), in...)
	sort.Strings(cp)
	return dedupSorted(cp)
}
