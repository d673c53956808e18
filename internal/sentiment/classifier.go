package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrClassifierUnavailable means no classifier backend could be built.
	ErrClassifierUnavailable = errors.New("sentiment classifier unavailable")
	// ErrClassification wraps a failed classifier invocation.
	ErrClassification = errors.New("sentiment classification failed")
)

// Probabilities is a three-class distribution.
type Probabilities struct {
	Neutral  float64 `json:"neutral"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
}

// NeutralCertain is returned for empty text without calling a model.
var NeutralCertain = Probabilities{Neutral: 1}

// Label returns the argmax class; ties resolve neutral, positive, negative.
func (p Probabilities) Label() string {
	switch {
	case p.Neutral >= p.Positive && p.Neutral >= p.Negative:
		return "neutral"
	case p.Positive >= p.Negative:
		return "positive"
	default:
		return "negative"
	}
}

// Softmax converts logits ordered neutral, positive, negative.
func Softmax(logits []float64) (Probabilities, error) {
	if len(logits) != 3 {
		return Probabilities{}, fmt.Errorf("%w: expected 3 logits, got %d", ErrClassification, len(logits))
	}
	m := math.Max(logits[0], math.Max(logits[1], logits[2]))
	var e [3]float64
	var sum float64
	for i, l := range logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return Probabilities{}, fmt.Errorf("%w: non-finite logit", ErrClassification)
		}
		e[i] = math.Exp(l - m)
		sum += e[i]
	}
	return Probabilities{Neutral: e[0] / sum, Positive: e[1] / sum, Negative: e[2] / sum}, nil
}

// Classifier is a three-class text sentiment model.
type Classifier interface {
	Classify(ctx context.Context, text string) (Probabilities, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (Probabilities, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Probabilities, error) {
	return f(ctx, text)
}

// FailurePolicy decides what a classifier error does to an article.
type FailurePolicy int

const (
	// Propagate aborts the article and returns the error.
	Propagate FailurePolicy = iota
	// FallbackNeutral substitutes NeutralCertain for the failed field.
	FallbackNeutral
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "propagate":
		return Propagate, nil
	case "neutral":
		return FallbackNeutral, nil
	}
	return Propagate, fmt.Errorf("unknown classifier failure policy %q", s)
}

// classify applies the empty-text short circuit and wraps backend errors.
func classify(ctx context.Context, c Classifier, text string) (Probabilities, error) {
	if strings.TrimSpace(text) == "" {
		return NeutralCertain, nil
	}
	p, err := c.Classify(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Probabilities{}, err
		}
		if errors.Is(err, ErrClassification) {
			return Probabilities{}, err
		}
		return Probabilities{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return p, nil
}
