package sentiment

import (
	"fmt"
	"math"
	"strings"
)

// Label is the categorical outcome of blending.
type Label string

const (
	HighlyOptimistic  Label = "Highly Optimistic"
	Optimistic        Label = "Optimistic"
	Neutral           Label = "Neutral"
	Pessimistic       Label = "Pessimistic"
	HighlyPessimistic Label = "Highly Pessimistic"
)

// Labels lists every label from most positive to most negative.
var Labels = []Label{HighlyOptimistic, Optimistic, Neutral, Pessimistic, HighlyPessimistic}

const (
	highThreshold = 0.7
	lowThreshold  = 0.4
)

// Classify maps blended probabilities to a label. Positive thresholds are
// checked before negative ones.
func Classify(pos, neg float64) Label {
	switch {
	case pos >= highThreshold:
		return HighlyOptimistic
	case pos >= lowThreshold:
		return Optimistic
	case neg >= highThreshold:
		return HighlyPessimistic
	case neg >= lowThreshold:
		return Pessimistic
	default:
		return Neutral
	}
}

// Scores holds the nine per-field probabilities of an article.
type Scores struct {
	Headline    Probabilities `json:"headline"`
	Description Probabilities `json:"description"`
	Detailed    Probabilities `json:"detailed"`
}

// Weights are the per-field blend weights; they always sum to 1.
type Weights struct {
	Headline    float64
	Description float64
	Detailed    float64
}

// Blend returns the weighted positive and negative probabilities.
func (w Weights) Blend(s Scores) (pos, neg float64) {
	pos = w.Headline*s.Headline.Positive + w.Description*s.Description.Positive + w.Detailed*s.Detailed.Positive
	neg = w.Headline*s.Headline.Negative + w.Description*s.Description.Negative + w.Detailed*s.Detailed.Negative
	return pos, neg
}

// Strategy derives blend weights from the number of relevant sentences in
// the detailed text.
type Strategy interface {
	Name() string
	Weights(detailedSentences int) Weights
}

// Adaptive gives the detailed text clamp(n/6, 0.33, 0.7) of the weight and
// splits the rest evenly between headline and description.
type Adaptive struct{}

func (Adaptive) Name() string { return "adaptive" }

func (Adaptive) Weights(n int) Weights {
	d := math.Min(0.7, math.Max(0.33, float64(n)/6))
	other := (1 - d) / 2
	return Weights{Headline: other, Description: other, Detailed: d}
}

// DetailedOnly labels from the detailed text alone.
type DetailedOnly struct{}

func (DetailedOnly) Name() string { return "detailed" }

func (DetailedOnly) Weights(int) Weights { return Weights{Detailed: 1} }

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "adaptive":
		return Adaptive{}, nil
	case "detailed", "detailed-only":
		return DetailedOnly{}, nil
	}
	return nil, fmt.Errorf("unknown blend strategy %q", s)
}

// LabelFor blends s with st and classifies the result.
func LabelFor(st Strategy, s Scores, detailedSentences int) Label {
	return Classify(st.Weights(detailedSentences).Blend(s))
}
