// Package news loads per-ticker news articles from configured sources.
package news

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrNoSource = errors.New("news: no source configured")

// Article is one news record. Optional text fields default to "".
type Article struct {
	ID           int64 // storage id; 0 when not persisted
	Ticker       string
	Headline     string
	Description  string
	DetailedNews string
	Published    time.Time // zero when the source date could not be parsed
	PublishedRaw string
}

// Source returns the articles stored for one ticker. A source with nothing
// for the ticker returns an empty slice and no error.
type Source interface {
	Articles(ctx context.Context, ticker string) ([]Article, error)
}

// Aggregator queries sources in order; the first source with articles for a
// ticker wins.
type Aggregator struct {
	sources []Source
	log     zerolog.Logger
}

func NewAggregator(log zerolog.Logger, sources ...Source) *Aggregator {
	return &Aggregator{sources: sources, log: log.With().Str("component", "news").Logger()}
}

// Load returns the articles for tickers, grouped in ticker order and
// newest first within a ticker. An empty ticker list returns nothing.
func (a *Aggregator) Load(ctx context.Context, tickers []string) ([]Article, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	if len(a.sources) == 0 {
		return nil, ErrNoSource
	}
	var out []Article
	seen := make(map[string]bool)
	for _, raw := range tickers {
		t := strings.ToUpper(strings.TrimSpace(raw))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		arts, err := a.forTicker(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, arts...)
	}
	a.log.Debug().Int("tickers", len(seen)).Int("articles", len(out)).Msg("news loaded")
	return out, nil
}

func (a *Aggregator) forTicker(ctx context.Context, ticker string) ([]Article, error) {
	for _, src := range a.sources {
		arts, err := src.Articles(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("load news for %s: %w", ticker, err)
		}
		if len(arts) == 0 {
			continue
		}
		for i := range arts {
			arts[i].Ticker = ticker
		}
		sort.SliceStable(arts, func(i, j int) bool { return arts[i].Published.After(arts[j].Published) })
		return arts, nil
	}
	return nil, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
}

// ParseDate accepts the date formats seen in scraped news tables.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
