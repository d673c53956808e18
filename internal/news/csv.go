package news

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVDir reads {ticker}_news.csv files from a directory. Files carry a
// header with any of headline, description, detailed_news and
// date_published (or date); missing columns read as empty.
type CSVDir struct {
	Dir string
}

func (c CSVDir) path(ticker string) string {
	return filepath.Join(c.Dir, strings.ToLower(ticker)+"_news.csv")
}

func (c CSVDir) Articles(ctx context.Context, ticker string) ([]Article, error) {
	f, err := os.Open(c.path(ticker))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, ticker)
}

// Tickers lists the tickers that have a news file in the directory.
func (c CSVDir) Tickers() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*_news.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToUpper(strings.TrimSuffix(filepath.Base(m), "_news.csv")))
	}
	return out, nil
}

// ReadCSV parses one ticker's news table.
func ReadCSV(r io.Reader, ticker string) ([]Article, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read news header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["date_published"]; !ok {
		if i, ok := col["date"]; ok {
			col["date_published"] = i
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Article
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read news row: %w", err)
		}
		a := Article{
			Ticker:       strings.ToUpper(ticker),
			Headline:     field(rec, "headline"),
			Description:  field(rec, "description"),
			DetailedNews: field(rec, "detailed_news"),
			PublishedRaw: field(rec, "date_published"),
		}
		a.Published, _ = ParseDate(a.PublishedRaw)
		if a.Headline == "" && a.Description == "" && a.DetailedNews == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
