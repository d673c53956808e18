package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"equityLens/internal/analytics"
	"equityLens/internal/charts"
	"equityLens/internal/config"
	"equityLens/internal/logger"
	"equityLens/internal/market"
	"equityLens/internal/news"
	"equityLens/internal/openai"
	"equityLens/internal/sentiment"
	"equityLens/internal/server"
	"equityLens/internal/storage"
	"equityLens/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lg := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure parent directory for the DB exists
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := storage.OpenSQLite("file:" + cfg.DBPath + "?_fk=1")
	if err != nil {
		lg.Fatal().Err(err).Msg("open sqlite")
	}
	defer db.Close()
	if err := storage.InitSchema(db); err != nil {
		lg.Fatal().Err(err).Msg("init schema")
	}
	store := storage.NewStore(db)
	lg.Info().Str("path", cfg.DBPath).Msg("db ready")

	prices := loadPrices(ctx, cfg, store, lg)
	sources := importNews(ctx, cfg, store, lg)

	clf, closeClf := buildClassifier(cfg, lg)
	defer closeClf()

	scorer := buildScorer(cfg, clf, store.WithScoreVariant(scoreVariant(cfg)), lg)

	deps := telegram.Deps{
		Engine:  analytics.NewEngine(lg),
		Fetcher: market.NewFetcher(cfg.YahooRPS, lg),
		Persist: store,
		News:    news.NewAggregator(lg, sources...),
		Scorer:  scorer,
		Charts:  charts.NewRenderer(charts.NewCache(10 * time.Minute)),
		Log:     lg,
	}
	if cfg.OpenAIKey != "" {
		deps.Digest = openai.NewDigest(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	tg, err := telegram.NewBot(cfg.TelegramToken, cfg.WebhookPublicURL, deps)
	if err != nil {
		lg.Fatal().Err(err).Msg("telegram init")
	}
	tg.Handlers().SetPrices(prices)

	mux := server.NewHTTPMux(tg.WebhookHandler, lg)
	addr := ":" + cfg.Port
	lg.Info().Str("addr", addr).Msg("http listening")
	if err := server.ListenAndServe(ctx, addr, mux); err != nil {
		lg.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	lg.Info().Msg("shutdown complete")
}

// loadPrices imports PRICES_CSV into the database, then returns every
// stored series.
func loadPrices(ctx context.Context, cfg config.Config, store *storage.Store, lg zerolog.Logger) *market.Store {
	if cfg.PricesCSV != "" {
		table, err := market.LoadCSVFile(cfg.PricesCSV)
		if err != nil {
			lg.Fatal().Err(err).Str("path", cfg.PricesCSV).Msg("load price table")
		}
		n, err := store.SavePrices(ctx, table)
		if err != nil {
			lg.Fatal().Err(err).Msg("save price table")
		}
		lg.Info().Int("rows", n).Int("tickers", table.Len()).Msg("price table imported")
	}
	prices, err := store.LoadPrices(ctx, nil)
	if err != nil {
		lg.Fatal().Err(err).Msg("load stored prices")
	}
	return prices
}

// importNews copies NEWS_DIR into the database and returns the news sources,
// database first.
func importNews(ctx context.Context, cfg config.Config, store *storage.Store, lg zerolog.Logger) []news.Source {
	sources := []news.Source{store}
	if cfg.NewsDir == "" {
		return sources
	}
	dir := news.CSVDir{Dir: cfg.NewsDir}
	tickers, err := dir.Tickers()
	if err != nil {
		lg.Warn().Err(err).Str("dir", cfg.NewsDir).Msg("list news files")
		return sources
	}
	total := 0
	for _, t := range tickers {
		arts, err := dir.Articles(ctx, t)
		if err != nil {
			lg.Warn().Err(err).Str("ticker", t).Msg("read news file")
			continue
		}
		if _, err := store.SaveArticles(ctx, arts); err != nil {
			lg.Warn().Err(err).Str("ticker", t).Msg("import news")
			continue
		}
		total += len(arts)
	}
	lg.Info().Int("articles", total).Int("tickers", len(tickers)).Msg("news imported")
	return append(sources, dir)
}

func buildClassifier(cfg config.Config, lg zerolog.Logger) (sentiment.Classifier, func()) {
	switch cfg.Classifier {
	case "onnx":
		c, err := sentiment.NewONNXClassifier(cfg.ONNXModelPath, cfg.ONNXVocabPath, cfg.ONNXLibraryPath)
		if err != nil {
			lg.Fatal().Err(err).Msg("onnx classifier")
		}
		lg.Info().Str("model", cfg.ONNXModelPath).Msg("onnx classifier ready")
		return c, func() { _ = c.Close() }
	default:
		lg.Info().Str("model", cfg.OpenAIModel).Msg("openai classifier ready")
		return openai.NewClassifier(cfg.OpenAIKey, cfg.OpenAIModel), func() {}
	}
}

// scoreVariant names the settings that change classification results.
func scoreVariant(cfg config.Config) string {
	model := cfg.OpenAIModel
	if cfg.Classifier == "onnx" {
		model = filepath.Base(cfg.ONNXModelPath)
	}
	return cfg.Classifier + "/" + model + "/" + cfg.NameMatch
}

func buildScorer(cfg config.Config, clf sentiment.Classifier, cache sentiment.Cache, lg zerolog.Logger) *sentiment.Scorer {
	st, err := sentiment.ParseStrategy(cfg.BlendStrategy)
	if err != nil {
		lg.Fatal().Err(err).Msg("blend strategy")
	}
	fail, err := sentiment.ParseFailurePolicy(cfg.ClassifierFailure)
	if err != nil {
		lg.Fatal().Err(err).Msg("failure policy")
	}
	mode, err := sentiment.ParseMatchMode(cfg.NameMatch)
	if err != nil {
		lg.Fatal().Err(err).Msg("name match")
	}
	var names *sentiment.NameLookup
	if cfg.CompaniesCSV != "" {
		if names, err = sentiment.LoadNamesFile(cfg.CompaniesCSV, mode); err != nil {
			lg.Fatal().Err(err).Str("path", cfg.CompaniesCSV).Msg("load company names")
		}
	} else {
		names = sentiment.NewNameLookup(nil, mode)
	}
	return sentiment.NewScorer(clf, names, sentiment.Options{
		Strategy: st,
		Failure:  fail,
		Workers:  cfg.ScorerWorkers,
		Cache:    cache,
	}, lg)
}
