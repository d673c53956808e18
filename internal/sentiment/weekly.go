package sentiment

import (
	"fmt"
	"sort"
	"time"
)

// WeeklyRow aggregates one ticker's articles over one ISO week.
type WeeklyRow struct {
	Ticker       string
	Week         string // e.g. 2024-W05
	WeekStart    time.Time
	Headline     string
	Description  string
	DetailedNews string
	Articles     int
	Scores       Scores
	Label        Label
}

func isoWeek(t time.Time) (string, time.Time) {
	y, w := t.ISOWeek()
	wd := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-wd, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%04d-W%02d", y, w), start
}

// Weekly groups scored articles by ticker and ISO week. Text fields come
// from the first article of the group, scores are averaged and the label is
// re-blended using the first article's detailed sentence count. Articles
// without a publication date are skipped. Rows are ordered by ticker, then
// week.
func Weekly(scored []Scored, st Strategy) []WeeklyRow {
	type key struct{ ticker, week string }
	rows := map[key]*WeeklyRow{}
	sentences := map[key]int{}
	var keys []key
	for _, s := range scored {
		if s.Article.Published.IsZero() {
			continue
		}
		week, start := isoWeek(s.Article.Published.UTC())
		k := key{s.Article.Ticker, week}
		r, ok := rows[k]
		if !ok {
			r = &WeeklyRow{
				Ticker:       s.Article.Ticker,
				Week:         week,
				WeekStart:    start,
				Headline:     s.Article.Headline,
				Description:  s.Article.Description,
				DetailedNews: s.Article.DetailedNews,
			}
			rows[k] = r
			sentences[k] = s.DetailedSentences
			keys = append(keys, k)
		}
		r.Articles++
		addScores(&r.Scores, s.Scores)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ticker != keys[j].ticker {
			return keys[i].ticker < keys[j].ticker
		}
		return keys[i].week < keys[j].week
	})
	out := make([]WeeklyRow, 0, len(keys))
	for _, k := range keys {
		r := rows[k]
		scaleScores(&r.Scores, 1/float64(r.Articles))
		r.Label = LabelFor(st, r.Scores, sentences[k])
		out = append(out, *r)
	}
	return out
}

func addProbs(dst *Probabilities, p Probabilities) {
	dst.Neutral += p.Neutral
	dst.Positive += p.Positive
	dst.Negative += p.Negative
}

func addScores(dst *Scores, s Scores) {
	addProbs(&dst.Headline, s.Headline)
	addProbs(&dst.Description, s.Description)
	addProbs(&dst.Detailed, s.Detailed)
}

func scaleScores(s *Scores, f float64) {
	for _, p := range []*Probabilities{&s.Headline, &s.Description, &s.Detailed} {
		p.Neutral *= f
		p.Positive *= f
		p.Negative *= f
	}
}

// LabelCount is one slice of the label distribution.
type LabelCount struct {
	Label Label
	Count int
}

// Distribution counts labels in Labels order, omitting zero counts.
func Distribution(labels []Label) []LabelCount {
	counts := map[Label]int{}
	for _, l := range labels {
		counts[l]++
	}
	var out []LabelCount
	for _, l := range Labels {
		if c := counts[l]; c > 0 {
			out = append(out, LabelCount{Label: l, Count: c})
		}
	}
	return out
}

// LabelsOf extracts the labels of scored articles.
func LabelsOf(scored []Scored) []Label {
	out := make([]Label, len(scored))
	for i, s := range scored {
		out[i] = s.Label
	}
	return out
}
