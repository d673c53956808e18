package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrMalformedTable, s)
}

func isMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "nan", "na", "null", "none":
		return true
	}
	return false
}

// LoadCSV reads a wide price table: the first column is the date index and
// every other column is one ticker's adjusted close. Empty cells are missing
// observations.
func LoadCSV(r io.Reader) (*Store, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty table", ErrMalformedTable)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: need a date column and at least one ticker column", ErrMalformedTable)
	}
	tickers := make([]string, len(header)-1)
	for i, h := range header[1:] {
		tickers[i] = normTicker(h)
		if tickers[i] == "" {
			return nil, fmt.Errorf("%w: empty ticker header in column %d", ErrMalformedTable, i+2)
		}
	}
	if len(sortedUnique(tickers)) != len(tickers) {
		return nil, fmt.Errorf("%w: duplicate ticker columns", ErrMalformedTable)
	}

	points := make([][]Point, len(tickers))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		date, err := parseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, cell := range rec[1:] {
			if isMissing(cell) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %q", ErrMalformedTable, line, tickers[i], cell)
			}
			points[i] = append(points[i], Point{Date: date, Close: v})
		}
	}

	s := NewStore()
	for i, t := range tickers {
		if err := s.Set(t, points[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadCSVFile opens path and calls LoadCSV.
func LoadCSVFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
