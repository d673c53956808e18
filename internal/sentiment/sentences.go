package sentiment

import (
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// SplitSentences segments text into trimmed, non-empty sentences following
// Unicode sentence boundaries.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		s := strings.TrimSpace(seg.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return out
}

// RelevantSentences keeps the sentences of text that match re.
func RelevantSentences(text string, re *regexp.Regexp) []string {
	var out []string
	for _, s := range SplitSentences(text) {
		if re.MatchString(s) {
			out = append(out, s)
		}
	}
	return out
}

// filterField joins the relevant sentences of text with single spaces. The
// result is empty when nothing matches.
func filterField(text string, re *regexp.Regexp) (string, int) {
	kept := RelevantSentences(text, re)
	return strings.Join(kept, " "), len(kept)
}
