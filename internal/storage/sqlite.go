package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"equityLens/internal/market"
	"equityLens/internal/news"
	"equityLens/internal/sentiment"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type Store struct {
	db      DB
	variant string // scorer configuration the cached scores belong to
}

// OpenSQLite opens dsn with a single connection so in-memory databases
// persist and writers never contend.
func OpenSQLite(dsn string) (DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func InitSchema(db DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS prices(
			ticker TEXT NOT NULL, date TEXT NOT NULL, close REAL NOT NULL,
			PRIMARY KEY(ticker, date)
		)`,
		`CREATE TABLE IF NOT EXISTS news(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL, headline TEXT, description TEXT, detailed_news TEXT,
			published TEXT,
			UNIQUE(ticker, headline, published)
		)`,
		`CREATE TABLE IF NOT EXISTS news_scores(
			news_id INTEGER NOT NULL REFERENCES news(id) ON DELETE CASCADE,
			variant TEXT NOT NULL DEFAULT '',
			headline_positive REAL, headline_neutral REAL, headline_negative REAL,
			description_positive REAL, description_neutral REAL, description_negative REAL,
			detailed_positive REAL, detailed_neutral REAL, detailed_negative REAL,
			detailed_sentences INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(news_id, variant)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(context.Background(), s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func NewStore(db DB) *Store { return &Store{db: db} }

// WithScoreVariant returns a Store whose score cache is keyed by variant as
// well as article id, so scores made by another classifier or name-match
// mode are not reused.
func (s *Store) WithScoreVariant(variant string) *Store {
	cp := *s
	cp.variant = variant
	return &cp
}

const dateLayout = "2006-01-02"

// SavePrices upserts every observation of prices in one transaction.
func (s *Store) SavePrices(ctx context.Context, prices *market.Store) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices(ticker,date,close) VALUES(?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, t := range prices.Tickers() {
		pts, _ := prices.Series(t)
		for _, p := range pts {
			if _, err := stmt.ExecContext(ctx, t, p.Date.Format(dateLayout), p.Close); err != nil {
				return 0, fmt.Errorf("save %s %s: %w", t, p.Date.Format(dateLayout), err)
			}
			n++
		}
	}
	return n, tx.Commit()
}

// LoadPrices reads the stored series for tickers, or every ticker when
// tickers is empty.
func (s *Store) LoadPrices(ctx context.Context, tickers []string) (*market.Store, error) {
	q := `SELECT ticker, date, close FROM prices`
	var args []any
	if len(tickers) > 0 {
		q += ` WHERE ticker IN (?` + strings.Repeat(",?", len(tickers)-1) + `)`
		for _, t := range tickers {
			args = append(args, strings.ToUpper(strings.TrimSpace(t)))
		}
	}
	q += ` ORDER BY ticker, date`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := map[string][]market.Point{}
	for rows.Next() {
		var t, d string
		var c float64
		if err := rows.Scan(&t, &d, &c); err != nil {
			return nil, err
		}
		day, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("%w: stored date %q", market.ErrMalformedTable, d)
		}
		series[t] = append(series[t], market.Point{Date: day, Close: c})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := market.NewStore()
	for t, pts := range series {
		if err := out.Set(t, pts); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func publishedKey(a news.Article) string {
	if !a.Published.IsZero() {
		return a.Published.UTC().Format(time.RFC3339)
	}
	return a.PublishedRaw
}

// SaveArticles inserts articles not stored yet and returns them all with
// their storage ids.
func (s *Store) SaveArticles(ctx context.Context, arts []news.Article) ([]news.Article, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]news.Article, len(arts))
	for i, a := range arts {
		a.Ticker = strings.ToUpper(strings.TrimSpace(a.Ticker))
		pub := publishedKey(a)
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO news(ticker,headline,description,detailed_news,published) VALUES(?,?,?,?,?)`,
			a.Ticker, a.Headline, a.Description, a.DetailedNews, pub); err != nil {
			return nil, err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM news WHERE ticker=? AND headline=? AND published=?`,
			a.Ticker, a.Headline, pub).Scan(&a.ID); err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, tx.Commit()
}

// Articles implements news.Source.
func (s *Store) Articles(ctx context.Context, ticker string) ([]news.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticker, headline, description, detailed_news, published FROM news WHERE ticker=? ORDER BY id`,
		strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []news.Article
	for rows.Next() {
		var a news.Article
		var head, desc, detail, pub sql.NullString
		if err := rows.Scan(&a.ID, &a.Ticker, &head, &desc, &detail, &pub); err != nil {
			return nil, err
		}
		a.Headline, a.Description, a.DetailedNews, a.PublishedRaw = head.String, desc.String, detail.String, pub.String
		a.Published, _ = news.ParseDate(a.PublishedRaw)
		out = append(out, a)
	}
	return out, rows.Err()
}

// NewsTickers lists tickers with stored articles.
func (s *Store) NewsTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM news ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadScores implements sentiment.Cache.
func (s *Store) LoadScores(ctx context.Context, id int64) (sentiment.Scores, int, bool, error) {
	var sc sentiment.Scores
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT
		headline_positive, headline_neutral, headline_negative,
		description_positive, description_neutral, description_negative,
		detailed_positive, detailed_neutral, detailed_negative, detailed_sentences
		FROM news_scores WHERE news_id=? AND variant=?`, id, s.variant).Scan(
		&sc.Headline.Positive, &sc.Headline.Neutral, &sc.Headline.Negative,
		&sc.Description.Positive, &sc.Description.Neutral, &sc.Description.Negative,
		&sc.Detailed.Positive, &sc.Detailed.Neutral, &sc.Detailed.Negative, &n)
	if err == sql.ErrNoRows {
		return sentiment.Scores{}, 0, false, nil
	}
	if err != nil {
		return sentiment.Scores{}, 0, false, err
	}
	return sc, n, true, nil
}

// SaveScores implements sentiment.Cache.
func (s *Store) SaveScores(ctx context.Context, id int64, sc sentiment.Scores, n int) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO news_scores(news_id, variant,
		headline_positive, headline_neutral, headline_negative,
		description_positive, description_neutral, description_negative,
		detailed_positive, detailed_neutral, detailed_negative, detailed_sentences)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`, id, s.variant,
		sc.Headline.Positive, sc.Headline.Neutral, sc.Headline.Negative,
		sc.Description.Positive, sc.Description.Neutral, sc.Description.Negative,
		sc.Detailed.Positive, sc.Detailed.Neutral, sc.Detailed.Negative, n)
	return err
}
