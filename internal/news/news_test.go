package news

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aaplNews = `headline,description,detailed_news,date_published
"Apple beats estimates","Strong quarter","Apple reported record revenue. Analysts cheered.",2024-02-01
"Apple faces probe",,"Regulators opened a case.",2024-02-03 10:00:00
,,,
`

func TestReadCSV(t *testing.T) {
	arts, err := ReadCSV(strings.NewReader(aaplNews), "aapl")
	require.NoError(t, err)
	require.Len(t, arts, 2, "blank rows are skipped")
	assert.Equal(t, "AAPL", arts[0].Ticker)
	assert.Equal(t, "Strong quarter", arts[0].Description)
	assert.Equal(t, "", arts[1].Description)
	assert.Equal(t, 2024, arts[1].Published.Year())
	assert.Equal(t, 10, arts[1].Published.Hour())
}

func TestReadCSV_DateColumnAlias(t *testing.T) {
	arts, err := ReadCSV(strings.NewReader("headline,date\nX,2024-03-04\n"), "T")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "2024-03-04", arts[0].PublishedRaw)
	assert.False(t, arts[0].Published.IsZero())
}

func TestCSVDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aapl_news.csv"), []byte(aaplNews), 0o644))

	src := CSVDir{Dir: dir}
	arts, err := src.Articles(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, arts, 2)

	arts, err = src.Articles(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Empty(t, arts)

	tickers, err := src.Tickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tickers)
}

type stubSource struct {
	arts map[string][]Article
	err  error
}

func (s stubSource) Articles(_ context.Context, ticker string) ([]Article, error) {
	return append([]Article(nil), s.arts[ticker]...), s.err
}

func TestAggregator_EmptyTickers(t *testing.T) {
	arts, err := NewAggregator(zerolog.Nop()).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestAggregator_NoSource(t *testing.T) {
	_, err := NewAggregator(zerolog.Nop()).Load(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestAggregator_FirstSourceWinsAndOrders(t *testing.T) {
	first := stubSource{arts: map[string][]Article{
		"AAPL": {{Headline: "old"}, {Headline: "new"}},
	}}
	first.arts["AAPL"][0].Published, _ = ParseDate("2024-01-01")
	first.arts["AAPL"][1].Published, _ = ParseDate("2024-02-01")
	second := stubSource{arts: map[string][]Article{
		"AAPL": {{Headline: "ignored"}},
		"MSFT": {{Headline: "msft"}},
	}}

	arts, err := NewAggregator(zerolog.Nop(), first, second).Load(context.Background(), []string{"aapl", "MSFT", "AAPL"})
	require.NoError(t, err)
	require.Len(t, arts, 3)
	assert.Equal(t, "new", arts[0].Headline)
	assert.Equal(t, "old", arts[1].Headline)
	assert.Equal(t, "MSFT", arts[2].Ticker)
}

func TestAggregator_SourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewAggregator(zerolog.Nop(), stubSource{err: boom}).Load(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, boom)
}
