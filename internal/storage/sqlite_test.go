package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityLens/internal/market"
	"equityLens/internal/news"
	"equityLens/internal/sentiment"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))
	return NewStore(db)
}

func TestPricesRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	prices, err := market.LoadCSV(strings.NewReader("Date,AAPL,MSFT\n2024-01-02,100,50\n2024-01-03,102,\n"))
	require.NoError(t, err)

	n, err := s.SavePrices(ctx, prices)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = s.SavePrices(ctx, prices)
	require.NoError(t, err, "re-saving replaces rows")

	all, err := s.LoadPrices(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, all.Tickers())
	aapl, _ := all.Series("AAPL")
	require.Len(t, aapl, 2)
	assert.Equal(t, 102.0, aapl[1].Close)

	sub, err := s.LoadPrices(ctx, []string{"msft"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, sub.Tickers())
}

func TestArticlesAndScores(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pub := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	arts := []news.Article{
		{Ticker: "aapl", Headline: "Apple beats", DetailedNews: "Apple did well.", Published: pub},
		{Ticker: "AAPL", Headline: "Apple slips", PublishedRaw: "sometime"},
	}

	saved, err := s.SaveArticles(ctx, arts)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotZero(t, saved[0].ID)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)

	again, err := s.SaveArticles(ctx, arts[:1])
	require.NoError(t, err)
	assert.Equal(t, saved[0].ID, again[0].ID, "duplicates keep their id")

	loaded, err := s.Articles(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, pub, loaded[0].Published)
	assert.True(t, loaded[1].Published.IsZero())
	assert.Equal(t, "sometime", loaded[1].PublishedRaw)

	tickers, err := s.NewsTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tickers)

	_, _, ok, err := s.LoadScores(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	sc := sentiment.Scores{
		Headline: sentiment.Probabilities{Positive: 0.9, Neutral: 0.05, Negative: 0.05},
		Detailed: sentiment.Probabilities{Neutral: 1},
	}
	require.NoError(t, s.SaveScores(ctx, saved[0].ID, sc, 2))
	got, n, ok, err := s.LoadScores(ctx, saved[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sc, got)
	assert.Equal(t, 2, n)

	other := s.WithScoreVariant("onnx/finbert.onnx/strict")
	_, _, ok, err = other.LoadScores(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.False(t, ok, "scores from another classifier setting are not reused")
	require.NoError(t, other.SaveScores(ctx, saved[0].ID, sentiment.Scores{Headline: sentiment.NeutralCertain}, 0))
	got, _, _, err = s.LoadScores(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, sc, got)
}

func TestStoreSatisfiesCollaborators(t *testing.T) {
	var _ news.Source = (*Store)(nil)
	var _ sentiment.Cache = (*Store)(nil)
}
