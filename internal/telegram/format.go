package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"equityLens/internal/analytics"
	"equityLens/internal/sentiment"
)

const maxMessage = 4000

// parseTickers splits, uppercases and dedupes symbols keeping first-seen order.
func parseTickers(field string) []string {
	raw := strings.Fields(field)
	seen := map[string]struct{}{}
	syms := make([]string, 0, len(raw))
	for _, s := range raw {
		su := strings.ToUpper(strings.TrimSpace(s))
		if su == "" {
			continue
		}
		if _, ok := seen[su]; ok {
			continue
		}
		seen[su] = struct{}{}
		syms = append(syms, su)
	}
	return syms
}

// parseFloats reads exactly n space-separated numbers.
func parseFloats(field string, n int) ([]float64, error) {
	parts := strings.Fields(field)
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func parseRange(lo, hi float64) (analytics.Range, error) {
	if lo > hi {
		return analytics.Range{}, fmt.Errorf("min %.4g is above max %.4g", lo, hi)
	}
	return analytics.Range{Min: lo, Max: hi}, nil
}

func parseBounds(field string) (analytics.Bounds, error) {
	v, err := parseFloats(field, 4)
	if err != nil {
		return analytics.Bounds{}, err
	}
	vol, err := parseRange(v[0], v[1])
	if err != nil {
		return analytics.Bounds{}, err
	}
	ret, err := parseRange(v[2], v[3])
	if err != nil {
		return analytics.Bounds{}, err
	}
	return analytics.Bounds{Vol: vol, Ret: ret}, nil
}

func parseFilter(field string) (analytics.FilterRanges, error) {
	v, err := parseFloats(field, 6)
	if err != nil {
		return analytics.FilterRanges{}, err
	}
	var rs [3]analytics.Range
	for i := range rs {
		if rs[i], err = parseRange(v[2*i], v[2*i+1]); err != nil {
			return analytics.FilterRanges{}, err
		}
	}
	return analytics.FilterRanges{Sharpe: rs[0], Vol: rs[1], Ret: rs[2]}, nil
}

func truncate(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	return s[:maxMessage] + "\n…"
}

func formatRecords(title string, recs []analytics.Record, f analytics.Frontier) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", title, len(recs))
	b.WriteString("TICKER   RETURN    VOL  SHARPE  POSITION\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-7s %7.2f%% %6.2f%% %6.2f  %s\n",
			r.Ticker, 100*r.AnnualReturn, 100*r.Volatility, r.Sharpe, f.Position(r.Ticker))
	}
	if !f.Empty() {
		fmt.Fprintf(&b, "\nTangency: %s (Sharpe %.2f)", f.Tangency.Ticker, f.Tangency.Sharpe)
	}
	return "```\n" + truncate(b.String()) + "\n```"
}

func formatBounds(b analytics.Bounds) string {
	return fmt.Sprintf("vol %.3f–%.3f • ret %.3f–%.3f", b.Vol.Min, b.Vol.Max, b.Ret.Min, b.Ret.Max)
}

func formatPairs(title string, pairs []analytics.Pair) string {
	var b strings.Builder
	b.WriteString(title + "\n")
	for i, p := range pairs {
		fmt.Fprintf(&b, "%2d. %s/%s  %.6f\n", i+1, p.A, p.B, p.Cov)
	}
	return b.String()
}

func formatDate(t time.Time, raw string) string {
	if t.IsZero() {
		return raw
	}
	return t.Format("2006-01-02")
}

func formatScored(scored []sentiment.Scored, limit int) string {
	var b strings.Builder
	for i, s := range scored {
		if i == limit {
			fmt.Fprintf(&b, "… and %d more\n", len(scored)-limit)
			break
		}
		head := s.Article.Headline
		if head == "" {
			head = s.Article.Description
		}
		fmt.Fprintf(&b, "[%s] %s %s • %s\n", s.Label, s.Article.Ticker, formatDate(s.Article.Published, s.Article.PublishedRaw), head)
	}
	return truncate(b.String())
}

func formatWeekly(rows []sentiment.WeeklyRow) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s • %d article(s) • %s • %s\n", r.Ticker, r.Week, r.Articles, r.Label, r.Headline)
	}
	return truncate(b.String())
}
