// Package sentiment turns news articles into blended sentiment labels.
package sentiment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"equityLens/internal/news"
)

// Scored is an article with its field scores and blended label.
type Scored struct {
	Article           news.Article
	Scores            Scores
	DetailedSentences int
	Label             Label
	Cached            bool
}

// Cache persists field scores by article id so articles are classified once.
type Cache interface {
	LoadScores(ctx context.Context, articleID int64) (Scores, int, bool, error)
	SaveScores(ctx context.Context, articleID int64, s Scores, detailedSentences int) error
}

type Options struct {
	Strategy Strategy
	Failure  FailurePolicy
	Workers  int
	Cache    Cache
}

// Scorer filters, classifies and blends articles.
type Scorer struct {
	clf      Classifier
	names    *NameLookup
	strategy Strategy
	failure  FailurePolicy
	workers  int
	cache    Cache
	log      zerolog.Logger
}

func NewScorer(clf Classifier, names *NameLookup, opts Options, log zerolog.Logger) *Scorer {
	if opts.Strategy == nil {
		opts.Strategy = Adaptive{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scorer{
		clf:      clf,
		names:    names,
		strategy: opts.Strategy,
		failure:  opts.Failure,
		workers:  opts.Workers,
		cache:    opts.Cache,
		log:      log.With().Str("component", "sentiment").Logger(),
	}
}

func (s *Scorer) Strategy() Strategy { return s.strategy }

// ClassifyArticle scores one article for its ticker.
func (s *Scorer) ClassifyArticle(ctx context.Context, a news.Article) (Scored, error) {
	if s.cache != nil && a.ID != 0 {
		sc, n, ok, err := s.cache.LoadScores(ctx, a.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("article", a.ID).Msg("score cache read failed")
		} else if ok {
			return Scored{Article: a, Scores: sc, DetailedSentences: n, Label: LabelFor(s.strategy, sc, n), Cached: true}, nil
		}
	}

	re := s.names.Matcher(a.Ticker)
	head, _ := filterField(a.Headline, re)
	desc, _ := filterField(a.Description, re)
	detail, n := filterField(a.DetailedNews, re)

	var sc Scores
	var fellBack bool
	for _, f := range []struct {
		name, text string
		dst        *Probabilities
	}{
		{"headline", head, &sc.Headline},
		{"description", desc, &sc.Description},
		{"detailed_news", detail, &sc.Detailed},
	} {
		p, fb, err := s.field(ctx, a, f.name, f.text)
		if err != nil {
			return Scored{}, err
		}
		*f.dst = p
		fellBack = fellBack || fb
	}

	// fallback scores are not real classifications and must be retried later
	if s.cache != nil && a.ID != 0 && !fellBack {
		if err := s.cache.SaveScores(ctx, a.ID, sc, n); err != nil {
			s.log.Warn().Err(err).Int64("article", a.ID).Msg("score cache write failed")
		}
	}
	return Scored{Article: a, Scores: sc, DetailedSentences: n, Label: LabelFor(s.strategy, sc, n)}, nil
}

// field classifies one article field. The bool reports that the failure
// policy substituted a neutral distribution.
func (s *Scorer) field(ctx context.Context, a news.Article, name, text string) (Probabilities, bool, error) {
	p, err := classify(ctx, s.clf, text)
	if err == nil {
		return p, false, nil
	}
	if ctx.Err() != nil || s.failure == Propagate {
		return Probabilities{}, false, fmt.Errorf("%s %q %s: %w", a.Ticker, a.Headline, name, err)
	}
	s.log.Warn().Err(err).Str("ticker", a.Ticker).Str("field", name).Msg("classifier failed, using neutral")
	return NeutralCertain, true, nil
}

// ScoreArticles scores a batch with up to Workers concurrent articles. The
// output is in input order. On error or cancellation no partial results are
// returned.
func (s *Scorer) ScoreArticles(ctx context.Context, articles []news.Article) ([]Scored, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	out := make([]Scored, len(articles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range articles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sc, err := s.ClassifyArticle(gctx, articles[i])
			if err != nil {
				return err
			}
			out[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Debug().Int("articles", len(out)).Int("workers", s.workers).Msg("articles scored")
	return out, nil
}

// Relabel recomputes labels with the scorer's strategy without classifying.
func (s *Scorer) Relabel(scored []Scored) {
	for i := range scored {
		scored[i].Label = LabelFor(s.strategy, scored[i].Scores, scored[i].DetailedSentences)
	}
}

// SentenceResult is the classification of one relevant sentence.
type SentenceResult struct {
	Sentence      string
	Sentiment     string
	Probabilities Probabilities
}

// SentenceSentiments classifies each sentence of text that mentions ticker.
func (s *Scorer) SentenceSentiments(ctx context.Context, text, ticker string) ([]SentenceResult, error) {
	var out []SentenceResult
	for _, sent := range RelevantSentences(text, s.names.Matcher(ticker)) {
		p, err := classify(ctx, s.clf, sent)
		if err != nil {
			if ctx.Err() != nil || s.failure == Propagate {
				return nil, err
			}
			p = NeutralCertain
		}
		out = append(out, SentenceResult{Sentence: sent, Sentiment: p.Label(), Probabilities: p})
	}
	return out, nil
}
