package sentiment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityLens/internal/news"
)

func lookup(mode MatchMode) *NameLookup {
	return NewNameLookup(map[string]string{
		"AAPL": "Apple Inc.",
		"GM":   "General Motors Company",
	}, mode)
}

// keywordModel is a fake classifier driven by keywords.
type keywordModel struct {
	calls atomic.Int32
	fail  string
}

func (m *keywordModel) Classify(_ context.Context, text string) (Probabilities, error) {
	m.calls.Add(1)
	lower := strings.ToLower(text)
	switch {
	case m.fail != "" && strings.Contains(lower, m.fail):
		return Probabilities{}, errors.New("model exploded")
	case strings.Contains(lower, "surge"), strings.Contains(lower, "record"), strings.Contains(lower, "beat"):
		return Probabilities{Neutral: 0.05, Positive: 0.9, Negative: 0.05}, nil
	case strings.Contains(lower, "plunge"), strings.Contains(lower, "probe"):
		return Probabilities{Neutral: 0.05, Positive: 0.05, Negative: 0.9}, nil
	}
	return Probabilities{Neutral: 0.8, Positive: 0.1, Negative: 0.1}, nil
}

func TestLoadNamesAndVariants(t *testing.T) {
	l, err := LoadNames(strings.NewReader("Symbol,Security,GICS Sector\nAAPL,Apple Inc.,IT\nGM,General Motors Company,Cons\n"), Permissive)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "Apple Inc.", "AAPL(Apple Inc.)", "Apple", "Inc"}, l.Variants("aapl"))
	assert.Equal(t, []string{"ZZZ"}, l.Variants("zzz"))

	strict := lookup(Strict)
	assert.Equal(t, []string{"GM", "General Motors Company", "GM(General Motors Company)", "General", "Motors"}, strict.Variants("GM"))

	_, err = LoadNames(strings.NewReader("Ticker,Name\n"), Strict)
	assert.Error(t, err)
}

func TestMatcher_Modes(t *testing.T) {
	strict := lookup(Strict).Matcher("AAPL")
	assert.True(t, strict.MatchString("Shares of apple rose."))
	assert.True(t, strict.MatchString("AAPL(Apple Inc.) closed higher"))
	assert.False(t, strict.MatchString("Pineapple prices fell."))
	assert.False(t, strict.MatchString("Inc. filings were due."))

	loose := lookup(Permissive).Matcher("AAPL")
	assert.True(t, loose.MatchString("Pineapple prices fell."))
	assert.True(t, loose.MatchString("Inc. filings were due."))

	assert.False(t, lookup(Strict).Matcher("").MatchString("anything"))
	var nilLookup *NameLookup
	assert.True(t, nilLookup.Matcher("xom").MatchString("XOM up"))
}

func TestSplitAndFilterSentences(t *testing.T) {
	text := "Apple beat estimates. Oil prices rose! Apple raised guidance?"
	got := SplitSentences(text)
	require.Len(t, got, 3)
	assert.Equal(t, "Oil prices rose!", got[1])

	joined, n := filterField(text, lookup(Strict).Matcher("AAPL"))
	assert.Equal(t, 2, n)
	assert.Equal(t, "Apple beat estimates. Apple raised guidance?", joined)

	joined, n = filterField("", lookup(Strict).Matcher("AAPL"))
	assert.Equal(t, "", joined)
	assert.Zero(t, n)
}

func TestSoftmax(t *testing.T) {
	p, err := Softmax([]float64{0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, p.Positive, 1e-12)

	p, err = Softmax([]float64{1, 1000, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Positive, 1e-9)
	assert.Equal(t, "positive", p.Label())

	_, err = Softmax([]float64{1, 2})
	assert.ErrorIs(t, err, ErrClassification)
}

func TestClassify_EmptyTextShortCircuits(t *testing.T) {
	m := &keywordModel{}
	p, err := classify(context.Background(), m, "   ")
	require.NoError(t, err)
	assert.Equal(t, NeutralCertain, p)
	assert.Zero(t, m.calls.Load())
}

func TestAdaptiveWeightsSumToOne(t *testing.T) {
	for n := 0; n <= 30; n++ {
		w := Adaptive{}.Weights(n)
		assert.InDelta(t, 1.0, w.Headline*2+w.Detailed, 1e-12, "n=%d", n)
		assert.Equal(t, w.Headline, w.Description)
		assert.GreaterOrEqual(t, w.Detailed, 0.33)
		assert.LessOrEqual(t, w.Detailed, 0.7)
	}
	assert.InDelta(t, 0.5, Adaptive{}.Weights(3).Detailed, 1e-12)
	assert.InDelta(t, 0.33, Adaptive{}.Weights(0).Detailed, 1e-12)
	assert.InDelta(t, 0.7, Adaptive{}.Weights(10).Detailed, 1e-12)

	d := DetailedOnly{}.Weights(5)
	assert.Equal(t, Weights{Detailed: 1}, d)
}

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		pos, neg float64
		want     Label
	}{
		{0.7, 0.0, HighlyOptimistic},
		{0.7, 0.9, HighlyOptimistic},
		{0.4, 0.7, Optimistic},
		{0.39, 0.7, HighlyPessimistic},
		{0.1, 0.4, Pessimistic},
		{0.39, 0.39, Neutral},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.pos, c.neg), "pos=%v neg=%v", c.pos, c.neg)
	}
}

func TestParseOptions(t *testing.T) {
	st, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, "adaptive", st.Name())
	st, err = ParseStrategy("detailed")
	require.NoError(t, err)
	assert.Equal(t, "detailed", st.Name())
	_, err = ParseStrategy("fancy")
	assert.Error(t, err)

	fp, err := ParseFailurePolicy("neutral")
	require.NoError(t, err)
	assert.Equal(t, FallbackNeutral, fp)
	_, err = ParseMatchMode("fuzzy")
	assert.Error(t, err)
}

func positiveArticle() news.Article {
	return news.Article{
		Ticker:   "AAPL",
		Headline: "AAPL surges 10%",
		DetailedNews: "Apple posted record sales. Supply chains are improving. " +
			"Apple shares surge after the report. Analysts say Apple beat every estimate.",
	}
}

func TestClassifyArticle_PositiveExample(t *testing.T) {
	s := NewScorer(&keywordModel{}, lookup(Strict), Options{}, zerolog.Nop())
	got, err := s.ClassifyArticle(context.Background(), positiveArticle())
	require.NoError(t, err)

	assert.Equal(t, 3, got.DetailedSentences)
	assert.InDelta(t, 0.5, Adaptive{}.Weights(got.DetailedSentences).Detailed, 1e-12)
	assert.Equal(t, NeutralCertain, got.Scores.Description)
	assert.Contains(t, []Label{Optimistic, HighlyOptimistic}, got.Label)
	assert.Equal(t, Optimistic, got.Label, "0.25*0.9 + 0.5*0.9 = 0.675")
}

func TestClassifyArticle_DetailedOnly(t *testing.T) {
	s := NewScorer(&keywordModel{}, lookup(Strict), Options{Strategy: DetailedOnly{}}, zerolog.Nop())
	got, err := s.ClassifyArticle(context.Background(), positiveArticle())
	require.NoError(t, err)
	assert.Equal(t, HighlyOptimistic, got.Label)
}

func TestClassifyArticle_FailurePolicies(t *testing.T) {
	a := positiveArticle()
	a.Headline = "AAPL under probe"

	s := NewScorer(&keywordModel{fail: "probe"}, lookup(Strict), Options{}, zerolog.Nop())
	_, err := s.ClassifyArticle(context.Background(), a)
	assert.ErrorIs(t, err, ErrClassification)

	s = NewScorer(&keywordModel{fail: "probe"}, lookup(Strict), Options{Failure: FallbackNeutral}, zerolog.Nop())
	got, err := s.ClassifyArticle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, NeutralCertain, got.Scores.Headline)
}

func TestScoreArticles_EmptyInput(t *testing.T) {
	s := NewScorer(&keywordModel{}, lookup(Strict), Options{Workers: 4}, zerolog.Nop())
	out, err := s.ScoreArticles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// slowModel delays longer for earlier submissions so completion order is
// the reverse of submission order.
type slowModel struct{}

func (slowModel) Classify(_ context.Context, text string) (Probabilities, error) {
	if strings.Contains(text, "first") {
		time.Sleep(20 * time.Millisecond)
	}
	return Probabilities{Neutral: 1}, nil
}

func TestScoreArticles_KeepsSubmissionOrder(t *testing.T) {
	arts := []news.Article{
		{Ticker: "AAPL", Headline: "AAPL first"},
		{Ticker: "AAPL", Headline: "AAPL second"},
		{Ticker: "AAPL", Headline: "AAPL third"},
	}
	s := NewScorer(slowModel{}, lookup(Strict), Options{Workers: 3}, zerolog.Nop())
	out, err := s.ScoreArticles(context.Background(), arts)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range arts {
		assert.Equal(t, arts[i].Headline, out[i].Article.Headline)
	}
}

func TestScoreArticles_ErrorDiscardsResults(t *testing.T) {
	arts := []news.Article{
		{Ticker: "AAPL", Headline: "AAPL fine"},
		{Ticker: "AAPL", Headline: "AAPL probe"},
	}
	s := NewScorer(&keywordModel{fail: "probe"}, lookup(Strict), Options{Workers: 2}, zerolog.Nop())
	out, err := s.ScoreArticles(context.Background(), arts)
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestScoreArticles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScorer(&keywordModel{}, lookup(Strict), Options{}, zerolog.Nop())
	out, err := s.ScoreArticles(ctx, []news.Article{positiveArticle()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

type memCache struct {
	mu sync.Mutex
	m  map[int64]Scored
}

func (c *memCache) LoadScores(_ context.Context, id int64) (Scores, int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[id]
	return s.Scores, s.DetailedSentences, ok, nil
}

func (c *memCache) SaveScores(_ context.Context, id int64, s Scores, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = Scored{Scores: s, DetailedSentences: n}
	return nil
}

func TestClassifyArticle_UsesCache(t *testing.T) {
	m := &keywordModel{}
	cache := &memCache{m: map[int64]Scored{}}
	s := NewScorer(m, lookup(Strict), Options{Cache: cache}, zerolog.Nop())

	a := positiveArticle()
	a.ID = 7
	first, err := s.ClassifyArticle(context.Background(), a)
	require.NoError(t, err)
	calls := m.calls.Load()
	require.NotZero(t, calls)

	second, err := s.ClassifyArticle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, calls, m.calls.Load(), "cached article is not re-classified")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Label, second.Label)
}

func TestClassifyArticle_FallbackScoresAreNotCached(t *testing.T) {
	cache := &memCache{m: map[int64]Scored{}}
	a := positiveArticle()
	a.ID = 9

	flaky := NewScorer(&keywordModel{fail: "surges"}, lookup(Strict), Options{Failure: FallbackNeutral, Cache: cache}, zerolog.Nop())
	first, err := flaky.ClassifyArticle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, NeutralCertain, first.Scores.Headline)
	assert.Empty(t, cache.m, "a neutral fallback is not persisted")

	healthy := NewScorer(&keywordModel{}, lookup(Strict), Options{Failure: FallbackNeutral, Cache: cache}, zerolog.Nop())
	second, err := healthy.ClassifyArticle(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.InDelta(t, 0.9, second.Scores.Headline.Positive, 1e-12)
	assert.Contains(t, cache.m, int64(9))
}

func TestSentenceSentiments(t *testing.T) {
	s := NewScorer(&keywordModel{}, lookup(Strict), Options{}, zerolog.Nop())
	res, err := s.SentenceSentiments(context.Background(), positiveArticle().DetailedNews, "AAPL")
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "positive", res[0].Sentiment)

	res, err = s.SentenceSentiments(context.Background(), "", "AAPL")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestWeeklyAndDistribution(t *testing.T) {
	day := func(s string) time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}
	pos := Scores{Detailed: Probabilities{Positive: 1}}
	neg := Scores{Detailed: Probabilities{Negative: 1}}
	scored := []Scored{
		{Article: news.Article{Ticker: "AAPL", Headline: "mon", Published: day("2024-01-01")}, Scores: pos, DetailedSentences: 6, Label: HighlyOptimistic},
		{Article: news.Article{Ticker: "AAPL", Headline: "sun", Published: day("2024-01-07")}, Scores: neg, Label: HighlyPessimistic},
		{Article: news.Article{Ticker: "AAPL", Headline: "next", Published: day("2024-01-08")}, Scores: pos, Label: HighlyOptimistic},
		{Article: news.Article{Ticker: "AAPL", Headline: "undated"}, Scores: pos, Label: Neutral},
	}

	rows := Weekly(scored, Adaptive{})
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-W01", rows[0].Week)
	assert.Equal(t, day("2024-01-01"), rows[0].WeekStart)
	assert.Equal(t, "mon", rows[0].Headline)
	assert.Equal(t, 2, rows[0].Articles)
	assert.InDelta(t, 0.5, rows[0].Scores.Detailed.Positive, 1e-12)
	assert.Equal(t, Neutral, rows[0].Label, "0.7 * 0.5 = 0.35 positive")
	assert.Equal(t, "2024-W02", rows[1].Week)

	dist := Distribution(LabelsOf(scored))
	assert.Equal(t, []LabelCount{
		{Label: HighlyOptimistic, Count: 2},
		{Label: Neutral, Count: 1},
		{Label: HighlyPessimistic, Count: 1},
	}, dist)
}

func TestWordPieceEncode(t *testing.T) {
	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\napple\nshares\nsurge\n##s\n!\nsurg\n"
	wp, err := LoadVocab(strings.NewReader(vocab), 8)
	require.NoError(t, err)

	ids, mask, types := wp.Encode("Apple shares surges!")
	assert.Equal(t, []int64{2, 4, 5, 6, 7, 8, 3}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 1}, mask)
	assert.Equal(t, make([]int64, 7), types)

	ids, _, _ = wp.Encode("zebra")
	assert.Equal(t, []int64{2, 1, 3}, ids)

	ids, _, _ = wp.Encode("apple apple apple apple apple apple apple apple")
	assert.Len(t, ids, 8)
	assert.Equal(t, int64(3), ids[7])

	_, err = LoadVocab(strings.NewReader("hello\n"), 8)
	assert.Error(t, err)
}
