package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// yahooChartResp mirrors the Yahoo v8 chart response (trimmed to daily closes)
type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GmtOffset int `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

var yahooRanges = map[string]string{
	"1m": "1mo", "1mo": "1mo",
	"3m": "3mo", "3mo": "3mo",
	"6m": "6mo", "6mo": "6mo",
	"1y": "1y", "2y": "2y", "5y": "5y", "10y": "10y",
	"ytd": "ytd", "max": "max",
}

// NormalizeRange maps user windows (1m, 6m, 1y, ...) to Yahoo range values.
func NormalizeRange(window string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(window))
	if w == "" {
		return "1y", nil
	}
	if r, ok := yahooRanges[w]; ok {
		return r, nil
	}
	return "", fmt.Errorf("invalid window %q (use 1m, 3m, 6m, 1y, 2y, 5y, 10y, ytd or max)", window)
}

// Fetcher downloads daily adjusted closes from Yahoo Finance.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	hosts    []string
	backoffs []time.Duration
	log      zerolog.Logger
}

func NewFetcher(rps int, log zerolog.Logger) *Fetcher {
	if rps < 1 {
		rps = 1
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 20 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		hosts:    []string{"query1.finance.yahoo.com", "query2.finance.yahoo.com"},
		backoffs: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
		log:      log.With().Str("component", "yahoo").Logger(),
	}
}

// FetchDaily returns the daily adjusted-close series for symbol over rangeParam.
func (f *Fetcher) FetchDaily(ctx context.Context, symbol, rangeParam string) ([]Point, error) {
	var yc yahooChartResp
	var lastErr error
	for attempt := 0; attempt < len(f.backoffs)+1; attempt++ {
		for _, host := range f.hosts {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			url := fmt.Sprintf("https://%s/v8/finance/chart/%s?range=%s&interval=1d&events=div,splits", host, symbol, rangeParam)
			body, err := f.get(ctx, url, symbol)
			if err != nil {
				lastErr = fmt.Errorf("yahoo %s: %w", host, err)
				continue
			}
			if err := json.Unmarshal(body, &yc); err != nil {
				lastErr = fmt.Errorf("failed to parse yahoo json: %v; body: %s", err, preview(body))
				continue
			}
			lastErr = nil
			break
		}
		if lastErr == nil {
			break
		}
		f.log.Debug().Err(lastErr).Str("symbol", symbol).Int("attempt", attempt).Msg("retrying")
		if attempt < len(f.backoffs) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoffs[attempt]):
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return chartPoints(yc)
}

func (f *Fetcher) get(ctx context.Context, url, symbol string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", fmt.Sprintf("https://finance.yahoo.com/quote/%s/chart", strings.ToUpper(symbol)))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(string(body), "Edge: Too Many Requests") {
		return nil, errors.New("429: Edge: Too Many Requests")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("returned %d: %s", resp.StatusCode, preview(body))
	}
	if strings.HasPrefix(string(body), "<") || strings.HasPrefix(string(body), "Edge:") {
		return nil, fmt.Errorf("non-json body: %s", preview(body))
	}
	return body, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

// chartPoints prefers adjusted closes and drops null or non-positive values.
func chartPoints(yc yahooChartResp) ([]Point, error) {
	if len(yc.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	res := yc.Chart.Result[0]
	var closes []*float64
	switch {
	case len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) > 0:
		closes = res.Indicators.AdjClose[0].AdjClose
	case len(res.Indicators.Quote) > 0:
		closes = res.Indicators.Quote[0].Close
	default:
		return nil, ErrNoData
	}
	loc := time.FixedZone("exchange", res.Meta.GmtOffset)
	n := len(res.Timestamp)
	if len(closes) < n {
		n = len(closes)
	}
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		c := closes[i]
		if c == nil || *c <= 0 {
			continue
		}
		local := time.Unix(res.Timestamp[i], 0).In(loc)
		out = append(out, Point{Date: day(local), Close: *c})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// FetchStore fetches every symbol into a new store. Symbols that fail are
// logged and reported in the returned slice; the call errors only when
// nothing could be fetched.
func (f *Fetcher) FetchStore(ctx context.Context, symbols []string, window string) (*Store, []string, error) {
	rng, err := NormalizeRange(window)
	if err != nil {
		return nil, nil, err
	}
	s := NewStore()
	var failed []string
	for _, sym := range symbols {
		pts, err := f.FetchDaily(ctx, normTicker(sym), rng)
		if err == nil {
			err = s.Set(sym, pts)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			f.log.Warn().Err(err).Str("symbol", sym).Msg("fetch failed")
			failed = append(failed, normTicker(sym))
			continue
		}
	}
	if s.Len() == 0 {
		return nil, failed, fmt.Errorf("%w: no symbol could be fetched", ErrNoData)
	}
	f.log.Info().Int("fetched", s.Len()).Int("failed", len(failed)).Str("range", rng).Msg("prices loaded")
	return s, failed, nil
}
