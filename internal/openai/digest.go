package openai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"equityLens/internal/sentiment"
)

// Digest summarises classified headlines into a short market note.
type Digest struct {
	chat completer
}

func NewDigest(apiKey, model string) *Digest {
	return &Digest{chat: newChat(apiKey, model)}
}

func (d *Digest) Summarize(ctx context.Context, scored []sentiment.Scored) (string, error) {
	lines := sanitizeLines(headlineLines(scored))
	if len(lines) == 0 {
		return "No news to summarize.", nil
	}
	// chunk to keep tokens reasonable
	const chunk = 60
	var partials []string
	for i := 0; i < len(lines); i += chunk {
		end := i + chunk
		if end > len(lines) {
			end = len(lines)
		}
		part := strings.Join(lines[i:end], "\n")
		out, err := d.chat.complete(ctx,
			"You are a concise equity news analyst. Each line is TICKER | sentiment label | headline. Summarise per ticker in bullets: what happened and whether the tone is optimistic or pessimistic. Do not invent facts or give advice.",
			"Summarize these classified headlines:\n"+part, 800)
		if err != nil {
			return "", err
		}
		partials = append(partials, out)
	}
	if len(partials) == 1 {
		return strings.TrimSpace(partials[0]), nil
	}

	final, err := d.chat.complete(ctx,
		"Merge these partial notes into one compact text-only digest with one section per ticker followed by an Overall Tone line. No links.",
		strings.Join(partials, "\n\n"), 1200)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(final), nil
}

func headlineLines(scored []sentiment.Scored) []string {
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		text := s.Article.Headline
		if text == "" {
			text = s.Article.Description
		}
		out = append(out, fmt.Sprintf("%s | %s | %s", s.Article.Ticker, s.Label, text))
	}
	return out
}

var (
	reMarkdownImg = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`) // ![alt](url)
	reURL         = regexp.MustCompile(`https?://\S+`)
)

// sanitizeLines strips links and media and caps each line; lines that end
// up with no headline text are dropped.
func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		text := reMarkdownImg.ReplaceAllString(l, "")
		text = reURL.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
		if text == "" || strings.HasSuffix(text, "|") {
			continue
		}
		if len(text) > 500 {
			text = text[:500]
		}
		out = append(out, text)
	}
	return out
}
