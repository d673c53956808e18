package sentiment

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// MatchMode controls how name variants are matched against sentences.
type MatchMode int

const (
	// Strict matches whole words only and ignores generic corporate words.
	Strict MatchMode = iota
	// Permissive matches any variant as a case-insensitive substring,
	// including every alphabetic word of the company name.
	Permissive
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "permissive":
		return Permissive, nil
	}
	return Strict, fmt.Errorf("unknown name match mode %q", s)
}

// genericWords never identify a company on their own.
var genericWords = map[string]bool{
	"inc": true, "corp": true, "corporation": true, "company": true, "co": true,
	"the": true, "group": true, "holdings": true, "holding": true, "ltd": true,
	"plc": true, "class": true, "and": true, "of": true, "international": true,
	"technologies": true, "systems": true, "services": true, "industries": true,
	"incorporated": true, "trust": true, "financial": true,
}

// NameLookup maps tickers to the name variants used for sentence filtering.
type NameLookup struct {
	names    map[string]string
	mode     MatchMode
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

var never = regexp.MustCompile(`[^\s\S]`)

// NewNameLookup builds a lookup from ticker to full company name.
func NewNameLookup(names map[string]string, mode MatchMode) *NameLookup {
	l := &NameLookup{
		names:    make(map[string]string, len(names)),
		mode:     mode,
		patterns: make(map[string]*regexp.Regexp),
	}
	for t, n := range names {
		l.names[strings.ToUpper(strings.TrimSpace(t))] = strings.TrimSpace(n)
	}
	return l
}

// LoadNames reads a Symbol,Security reference table.
func LoadNames(r io.Reader, mode MatchMode) (*NameLookup, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read company header: %w", err)
	}
	sym, sec := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol":
			sym = i
		case "security":
			sec = i
		}
	}
	if sym < 0 || sec < 0 {
		return nil, errors.New("company table needs Symbol and Security columns")
	}
	names := make(map[string]string)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read company table: %w", err)
		}
		if sym >= len(rec) || sec >= len(rec) {
			continue
		}
		names[rec[sym]] = rec[sec]
	}
	return NewNameLookup(names, mode), nil
}

func LoadNamesFile(path string, mode MatchMode) (*NameLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadNames(f, mode)
}

// Name returns the full company name for ticker.
func (l *NameLookup) Name(ticker string) (string, bool) {
	if l == nil {
		return "", false
	}
	n, ok := l.names[strings.ToUpper(strings.TrimSpace(ticker))]
	return n, ok
}

// Variants returns the ticker, the full name, "TICKER(Name)" and the
// alphabetic words of the name, deduplicated in that order. An unknown
// ticker yields only itself.
func (l *NameLookup) Variants(ticker string) []string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return nil
	}
	out := []string{t}
	name, ok := l.Name(t)
	if !ok || name == "" {
		return out
	}
	out = append(out, name, fmt.Sprintf("%s(%s)", t, name))
	words := strings.FieldsFunc(name, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if l.mode == Strict && (genericWords[strings.ToLower(w)] || len([]rune(w)) < 3) {
			continue
		}
		out = append(out, w)
	}
	return dedup(out)
}

// Matcher returns the compiled relevance pattern for ticker. A nil lookup
// matches the ticker symbol alone.
func (l *NameLookup) Matcher(ticker string) *regexp.Regexp {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	if key == "" {
		return never
	}
	if l == nil {
		return compileVariants([]string{key}, Strict)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if re, ok := l.patterns[key]; ok {
		return re
	}
	re := compileVariants(l.Variants(key), l.mode)
	l.patterns[key] = re
	return re
}

func compileVariants(variants []string, mode MatchMode) *regexp.Regexp {
	quoted := make([]string, len(variants))
	for i, v := range variants {
		quoted[i] = regexp.QuoteMeta(v)
	}
	alt := strings.Join(quoted, "|")
	if mode == Permissive {
		return regexp.MustCompile(`(?i)(?:` + alt + `)`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(?:` + alt + `)(?:$|[^\pL\pN])`)
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
