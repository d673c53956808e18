package market

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

const table = `Date,AAPL,MSFT,XOM
2024-01-02,100,50,
2024-01-03,102,49,80
2024-01-04,101,51,81
2024-01-05,105,,82
2024-01-08,108,53,83
`

func TestLoadCSV(t *testing.T) {
	s, err := LoadCSV(strings.NewReader(table))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, s.Tickers())
	aapl, ok := s.Series("aapl")
	require.True(t, ok)
	require.Len(t, aapl, 5)
	assert.Equal(t, 108.0, aapl[4].Close)

	msft, _ := s.Series("MSFT")
	assert.Len(t, msft, 4, "missing cell is dropped")
	xom, _ := s.Series("XOM")
	assert.Equal(t, d("2024-01-03"), xom[0].Date)
}

func TestLoadCSV_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"only date":     "Date\n2024-01-01\n",
		"bad date":      "Date,A\nyesterday,1\n",
		"bad number":    "Date,A\n2024-01-01,abc\n",
		"dup column":    "Date,A,a\n2024-01-01,1,2\n",
		"dup date":      "Date,A\n2024-01-01,1\n2024-01-01,2\n",
		"ragged record": "Date,A,B\n2024-01-01,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformedTable)
		})
	}
}

func TestStore_Aligned_Intersects(t *testing.T) {
	s, err := LoadCSV(strings.NewReader(table))
	require.NoError(t, err)

	f := s.Aligned(nil)
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, f.Tickers)
	assert.Equal(t, []time.Time{d("2024-01-03"), d("2024-01-04"), d("2024-01-08")}, f.Dates)
	assert.Equal(t, []float64{49, 51, 53}, f.Column("MSFT"))

	f = s.Aligned([]string{"msft", "AAPL", "NOPE", "AAPL"})
	assert.Equal(t, []string{"AAPL", "MSFT"}, f.Tickers)
	assert.Len(t, f.Dates, 4)
}

func TestStore_SetDropsInvalid(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("x", []Point{
		{Date: d("2024-01-03"), Close: 2},
		{Date: d("2024-01-02"), Close: math.NaN()},
		{Date: d("2024-01-01"), Close: 1},
		{Date: d("2024-01-04"), Close: -1},
	}))
	pts, _ := s.Series("X")
	require.Len(t, pts, 2)
	assert.True(t, pts[0].Date.Before(pts[1].Date))
}

func TestStore_BetweenAndSubset(t *testing.T) {
	s, err := LoadCSV(strings.NewReader(table))
	require.NoError(t, err)

	w := s.Between(d("2024-01-04"), time.Time{})
	aapl, _ := w.Series("AAPL")
	assert.Len(t, aapl, 3)

	sub := s.Subset([]string{"xom", "ZZZ"})
	assert.Equal(t, []string{"XOM"}, sub.Tickers())

	all := s.Subset(nil)
	assert.Equal(t, 3, all.Len())
}

func TestResample_MonthlyBackFill(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("A", []Point{
		{Date: d("2024-01-10"), Close: 1},
		{Date: d("2024-01-31"), Close: 2},
		{Date: d("2024-03-15"), Close: 4},
	}))
	require.NoError(t, s.Set("B", []Point{
		{Date: d("2024-02-01"), Close: 10},
	}))

	f := s.Resample(nil, Monthly, time.Time{}, time.Time{})
	assert.Equal(t, []time.Time{d("2024-01-31"), d("2024-02-29"), d("2024-03-31")}, f.Dates)
	assert.Equal(t, []float64{2, 4, 4}, f.Column("A"), "empty February takes March's value")
	assert.Equal(t, []float64{10, 10, 10}, f.Column("B"), "leading back-fill, trailing carry")
}

func TestResample_DailyIncludesCalendarGaps(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("A", []Point{
		{Date: d("2024-01-05"), Close: 1},
		{Date: d("2024-01-08"), Close: 3},
	}))
	f := s.Resample([]string{"A"}, Daily, time.Time{}, time.Time{})
	require.Len(t, f.Dates, 4)
	assert.Equal(t, []float64{1, 3, 3, 3}, f.Column("A"))
}

func TestResample_Yearly(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("A", []Point{
		{Date: d("2022-06-01"), Close: 1},
		{Date: d("2024-02-01"), Close: 5},
	}))
	f := s.Resample(nil, Yearly, time.Time{}, time.Time{})
	assert.Equal(t, []time.Time{d("2022-12-31"), d("2023-12-31"), d("2024-12-31")}, f.Dates)
	assert.Equal(t, []float64{1, 5, 5}, f.Column("A"))
}

func TestNormalize(t *testing.T) {
	f := Frame{
		Tickers: []string{"A", "B"},
		Columns: [][]float64{{2, 4, 6}, {3, 3, 3}},
	}
	n := Normalize(f)
	assert.Equal(t, []float64{0, 0.5, 1}, n.Columns[0])
	assert.Equal(t, []float64{0, 0, 0}, n.Columns[1])
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("Monthly")
	require.NoError(t, err)
	assert.Equal(t, Monthly, f)
	_, err = ParseFrequency("weekly")
	assert.Error(t, err)
}

func TestNormalizeRange(t *testing.T) {
	r, err := NormalizeRange("")
	require.NoError(t, err)
	assert.Equal(t, "1y", r)
	r, err = NormalizeRange("6M")
	require.NoError(t, err)
	assert.Equal(t, "6mo", r)
	_, err = NormalizeRange("7w")
	assert.Error(t, err)
}

func TestChartPoints_PrefersAdjClose(t *testing.T) {
	raw := `{"chart":{"result":[{"meta":{"gmtoffset":-18000},
		"timestamp":[1704205800,1704292200,1704378600],
		"indicators":{"quote":[{"close":[1,2,3]}],"adjclose":[{"adjclose":[10,null,30]}]}}],"error":null}}`
	var yc yahooChartResp
	require.NoError(t, json.Unmarshal([]byte(raw), &yc))

	pts, err := chartPoints(yc)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 10.0, pts[0].Close)
	assert.Equal(t, d("2024-01-02"), pts[0].Date)
	assert.Equal(t, 30.0, pts[1].Close)

	_, err = chartPoints(yahooChartResp{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetcher_RetriesAcrossHosts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"chart":{"result":[{"meta":{"gmtoffset":0},"timestamp":[1704153600],
			"indicators":{"quote":[{"close":[5]}]}}]}}`))
	}))
	defer srv.Close()

	f := NewFetcher(100, zerolog.Nop())
	f.hosts = []string{strings.TrimPrefix(srv.URL, "http://")}
	f.backoffs = []time.Duration{time.Millisecond}
	f.client = &http.Client{Transport: rewriteScheme{srv.Client().Transport}}

	pts, err := f.FetchDaily(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 5.0, pts[0].Close)
	assert.Equal(t, 2, calls)
}

// rewriteScheme lets the https URLs built by the fetcher reach the test server.
type rewriteScheme struct{ rt http.RoundTripper }

func (r rewriteScheme) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	return r.rt.RoundTrip(req)
}
