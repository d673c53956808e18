package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"equityLens/internal/analytics"
	"equityLens/internal/charts"
	"equityLens/internal/market"
	"equityLens/internal/news"
	"equityLens/internal/sentiment"
)

var (
	// /prices S1 S2 ... [window]
	rePrices = regexp.MustCompile(`^/prices(?:@[\w_]+)?\s+([A-Za-z0-9\.^_=+\-\s]+?)(?:\s+(1m|3m|6m|1y|2y|5y|10y|ytd|max))?$`)
	reRisk   = regexp.MustCompile(`^/risk(?:@[\w_]+)?(?:\s+(local|global))?$`)
	// /view volMin volMax retMin retMax
	reView = regexp.MustCompile(`^/view(?:@[\w_]+)?\s+(.+)$`)
	reHome = regexp.MustCompile(`^/home(?:@[\w_]+)?$`)
	// /filter sMin sMax vMin vMax rMin rMax
	reFilter  = regexp.MustCompile(`^/filter(?:@[\w_]+)?\s+(.+)$`)
	reCML     = regexp.MustCompile(`^/cml(?:@[\w_]+)?$`)
	reInspect = regexp.MustCompile(`^/inspect(?:@[\w_]+)?\s+(.+)$`)
	reCov     = regexp.MustCompile(`^/cov(?:@[\w_]+)?(?:\s+(\S+))?$`)
	rePCreate = regexp.MustCompile(`^/pcreate(?:@[\w_]+)?\s+(\S+)$`)
	rePUse    = regexp.MustCompile(`^/puse(?:@[\w_]+)?\s+(\S+)$`)
	rePAdd    = regexp.MustCompile(`^/padd(?:@[\w_]+)?\s+(.+)$`)
	rePRm     = regexp.MustCompile(`^/prm(?:@[\w_]+)?\s+(.+)$`)
	rePList   = regexp.MustCompile(`^/plist(?:@[\w_]+)?$`)
	// /series NAME daily|monthly|yearly START END [norm]
	reSeries = regexp.MustCompile(`^/series(?:@[\w_]+)?\s+(\S+)\s+(daily|monthly|yearly)\s+(\d{4}-\d{2}-\d{2})\s+(\d{4}-\d{2}-\d{2})(?:\s+(norm))?$`)
	// /news S1 S2 ... | @portfolio [weekly]
	reNews   = regexp.MustCompile(`^/news(?:@[\w_]+)?\s+(.+?)(?:\s+(weekly))?$`)
	reDigest = regexp.MustCompile(`^/digest(?:@[\w_]+)?\s+(.+)$`)
	// /sentences TICKER free text
	reSentences = regexp.MustCompile(`(?s)^/sentences(?:@[\w_]+)?\s+(\S+)\s+(.+)$`)
	reHelp      = regexp.MustCompile(`^/(help|start)(?:@[\w_]+)?$`)
)

const (
	inspectRadius  = 0.01
	commandTimeout = 2 * time.Minute
	newsListLimit  = 15
	noPrices       = "No price data loaded. Use /prices T1 T2 … first."
)

// Sender is the slice of the Bot API the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type PriceFetcher interface {
	FetchStore(ctx context.Context, symbols []string, window string) (*market.Store, []string, error)
}

// Persistence stores fetched prices and imported articles.
type Persistence interface {
	SavePrices(ctx context.Context, prices *market.Store) (int, error)
	SaveArticles(ctx context.Context, arts []news.Article) ([]news.Article, error)
}

type Digester interface {
	Summarize(ctx context.Context, scored []sentiment.Scored) (string, error)
}

// Deps are the services behind the chat commands. Fetcher, Persist, News,
// Scorer and Digest may be nil; the matching commands then reply that the
// feature is not configured.
type Deps struct {
	Engine  *analytics.Engine
	Fetcher PriceFetcher
	Persist Persistence
	News    *news.Aggregator
	Scorer  *sentiment.Scorer
	Digest  Digester
	Charts  *charts.Renderer
	Log     zerolog.Logger
}

type Handlers struct {
	api  Sender
	deps Deps
	log  zerolog.Logger

	mu      sync.RWMutex
	prices  *market.Store
	version int

	chats sessions
}

func NewHandlers(api Sender, deps Deps) *Handlers {
	if deps.Engine == nil {
		deps.Engine = analytics.NewEngine(deps.Log)
	}
	if deps.Charts == nil {
		deps.Charts = charts.NewRenderer(nil)
	}
	return &Handlers{
		api:    api,
		deps:   deps,
		log:    deps.Log.With().Str("component", "telegram").Logger(),
		prices: market.NewStore(),
	}
}

// SetPrices replaces the shared price store.
func (h *Handlers) SetPrices(s *market.Store) {
	if s == nil {
		s = market.NewStore()
	}
	h.mu.Lock()
	h.prices = s
	h.version++
	h.mu.Unlock()
	h.deps.Charts.Invalidate()
}

// mergePrices copies the current store and overlays add, so readers holding
// the previous snapshot are unaffected.
func (h *Handlers) mergePrices(add *market.Store) {
	h.mu.Lock()
	next := market.NewStore()
	next.Merge(h.prices)
	next.Merge(add)
	h.prices = next
	h.version++
	h.mu.Unlock()
	h.deps.Charts.Invalidate()
}

func (h *Handlers) snapshot() (*market.Store, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prices, h.version
}

func (h *Handlers) HandleMessage(m *tgbotapi.Message) {
	txt := strings.TrimSpace(m.Text)
	if txt == "" || m.Chat == nil {
		return
	}
	chatID := m.Chat.ID
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess := h.chats.get(chatID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch {
	case rePrices.MatchString(txt):
		g := rePrices.FindStringSubmatch(txt)
		syms := parseTickers(g[1])
		if len(syms) == 0 {
			h.reply(chatID, "Please provide at least one symbol, e.g. /prices AAPL MSFT 1y")
			return
		}
		h.handlePrices(ctx, chatID, syms, g[2])

	case reRisk.MatchString(txt):
		g := reRisk.FindStringSubmatch(txt)
		h.handleRisk(chatID, sess, g[1] == "global")

	case reView.MatchString(txt):
		b, err := parseBounds(reView.FindStringSubmatch(txt)[1])
		if err != nil {
			h.reply(chatID, "Usage: /view volMin volMax retMin retMax ("+err.Error()+")")
			return
		}
		sess.Viewport = &b
		h.reply(chatID, "Viewport set: "+formatBounds(b))

	case reHome.MatchString(txt):
		recs := h.records()
		b, ok := analytics.FullBounds(recs)
		if !ok {
			h.reply(chatID, noPrices)
			return
		}
		sess.Viewport = &b
		h.reply(chatID, "Viewport reset: "+formatBounds(b))

	case reFilter.MatchString(txt):
		f, err := parseFilter(reFilter.FindStringSubmatch(txt)[1])
		if err != nil {
			h.reply(chatID, "Usage: /filter sMin sMax vMin vMax rMin rMax ("+err.Error()+")")
			return
		}
		sess.Filter = f
		h.reply(chatID, fmt.Sprintf("Filter set: sharpe %.2f–%.2f • vol %.2f–%.2f • ret %.2f–%.2f",
			f.Sharpe.Min, f.Sharpe.Max, f.Vol.Min, f.Vol.Max, f.Ret.Min, f.Ret.Max))

	case reCML.MatchString(txt):
		h.handleCML(chatID, sess)

	case reInspect.MatchString(txt):
		v, err := parseFloats(reInspect.FindStringSubmatch(txt)[1], 2)
		if err != nil {
			h.reply(chatID, "Usage: /inspect vol ret ("+err.Error()+")")
			return
		}
		h.handleInspect(chatID, sess, v[0], v[1])

	case reCov.MatchString(txt):
		h.handleCov(chatID, sess, reCov.FindStringSubmatch(txt)[1])

	case rePCreate.MatchString(txt):
		name := rePCreate.FindStringSubmatch(txt)[1]
		sess.Portfolios.Create(name)
		h.reply(chatID, fmt.Sprintf("Portfolio %q is now active.", name))

	case rePUse.MatchString(txt):
		name := rePUse.FindStringSubmatch(txt)[1]
		if !sess.Portfolios.SetActive(name) {
			h.reply(chatID, fmt.Sprintf("Unknown portfolio %q. Use /pcreate first.", name))
			return
		}
		h.reply(chatID, fmt.Sprintf("Portfolio %q is now active.", name))

	case rePAdd.MatchString(txt), rePRm.MatchString(txt):
		h.handleMembership(chatID, sess, txt)

	case rePList.MatchString(txt):
		h.handleList(chatID, sess)

	case reSeries.MatchString(txt):
		h.handleSeries(chatID, sess, reSeries.FindStringSubmatch(txt))

	case reNews.MatchString(txt):
		g := reNews.FindStringSubmatch(txt)
		tickers, err := h.resolveTickers(sess, g[1])
		if err != nil {
			h.reply(chatID, err.Error())
			return
		}
		h.handleNews(ctx, chatID, tickers, g[2] == "weekly")

	case reDigest.MatchString(txt):
		tickers, err := h.resolveTickers(sess, reDigest.FindStringSubmatch(txt)[1])
		if err != nil {
			h.reply(chatID, err.Error())
			return
		}
		h.handleDigest(ctx, chatID, tickers)

	case reSentences.MatchString(txt):
		g := reSentences.FindStringSubmatch(txt)
		h.handleSentences(ctx, chatID, strings.ToUpper(g[1]), g[2])

	case reHelp.MatchString(txt):
		h.reply(chatID, helpText)

	default:
		if strings.HasPrefix(txt, "/") {
			h.reply(chatID, "Unknown command. Try /help")
		}
	}
}

func (h *Handlers) handlePrices(ctx context.Context, chatID int64, syms []string, window string) {
	if h.deps.Fetcher == nil {
		h.reply(chatID, "Price fetching is not configured.")
		return
	}
	if _, err := market.NormalizeRange(window); err != nil {
		h.reply(chatID, err.Error())
		return
	}
	store, failed, err := h.deps.Fetcher.FetchStore(ctx, syms, window)
	if err != nil {
		h.log.Error().Err(err).Strs("symbols", syms).Msg("price fetch failed")
		h.reply(chatID, "Failed to fetch prices: "+err.Error())
		return
	}
	h.mergePrices(store)
	if h.deps.Persist != nil {
		if n, err := h.deps.Persist.SavePrices(ctx, store); err != nil {
			h.log.Warn().Err(err).Msg("saving prices failed")
		} else {
			h.log.Debug().Int("rows", n).Msg("prices saved")
		}
	}
	msg := fmt.Sprintf("Loaded %d symbol(s): %s", store.Len(), strings.Join(store.Tickers(), ", "))
	if len(failed) > 0 {
		msg += "\nFailed: " + strings.Join(failed, ", ")
	}
	h.reply(chatID, msg)
}

func (h *Handlers) records() []analytics.Record {
	store, _ := h.snapshot()
	return analytics.WithSharpe(h.deps.Engine.Compute(store, analytics.Window{}))
}

// viewport returns the session viewport, defaulting to the full extent.
func viewport(sess *Session, recs []analytics.Record) (analytics.Bounds, bool) {
	if sess.Viewport != nil {
		return *sess.Viewport, true
	}
	return analytics.FullBounds(recs)
}

func (h *Handlers) handleRisk(chatID int64, sess *Session, global bool) {
	recs := h.records()
	if len(recs) == 0 {
		h.reply(chatID, noPrices)
		return
	}
	b, _ := viewport(sess, recs)
	f := analytics.Analyze(recs, b)
	mode, title := analytics.Local, "Risk/return (local)"
	if global {
		mode, title = analytics.Global, "Risk/return (global)"
	}
	rows := analytics.Table(recs, mode, sess.Viewport, sess.Filter)
	h.replyMarkdown(chatID, formatRecords(title, rows, f))
}

func (h *Handlers) handleCML(chatID int64, sess *Session) {
	recs := h.records()
	if len(recs) == 0 {
		h.reply(chatID, noPrices)
		return
	}
	b, _ := viewport(sess, recs)
	f := analytics.Analyze(recs, b)
	if f.Empty() {
		h.reply(chatID, "No tickers in the current view.")
		return
	}
	_, ver := h.snapshot()
	key := fmt.Sprintf("cml|%d|%s", ver, formatBounds(b))
	img, err := h.deps.Charts.Cached(key, func() ([]byte, error) { return charts.CapitalMarketLine(f) })
	if err != nil {
		h.log.Error().Err(err).Msg("cml chart failed")
		h.reply(chatID, "Failed to draw the CML: "+err.Error())
		return
	}
	caption := fmt.Sprintf("Tangency %s • Sharpe %.2f\nLending: %s\nBorrowing: %s",
		f.Tangency.Ticker, f.Tangency.Sharpe, joinOrDash(f.Lending), joinOrDash(f.Borrowing))
	h.sendPhoto(chatID, "cml.png", img, caption)
}

func (h *Handlers) handleInspect(chatID int64, sess *Session, vol, ret float64) {
	recs := h.records()
	r, ok := analytics.Nearest(recs, vol, ret, inspectRadius)
	if !ok {
		h.reply(chatID, fmt.Sprintf("No ticker within %.2f of (%.3f, %.3f).", inspectRadius, vol, ret))
		return
	}
	pos := analytics.Normal
	if b, ok := viewport(sess, recs); ok {
		pos = analytics.Analyze(recs, b).Position(r.Ticker)
	}
	h.reply(chatID, fmt.Sprintf("%s\nreturn %.2f%% • vol %.2f%% • Sharpe %.2f • %s",
		r.Ticker, 100*r.AnnualReturn, 100*r.Volatility, r.Sharpe, pos))
}

func (h *Handlers) handleCov(chatID int64, sess *Session, name string) {
	var subset []string
	if name != "" {
		if !sess.Portfolios.Has(name) {
			h.reply(chatID, fmt.Sprintf("Unknown portfolio %q.", name))
			return
		}
		// non-nil so an empty portfolio does not fall back to every ticker
		subset = append([]string{}, sess.Portfolios.GetStocks(name)...)
	}
	store, ver := h.snapshot()
	res := analytics.Covariance(store, subset)
	if res.Empty() {
		h.reply(chatID, "Need at least two tickers with overlapping history.")
		return
	}
	h.replyMarkdown(chatID, "```\n"+formatPairs("Highest covariance", res.Highest)+"\n"+formatPairs("Lowest covariance", res.Lowest)+"```")

	key := fmt.Sprintf("cov|%d|%s", ver, strings.Join(res.Tickers, ","))
	img, err := h.deps.Charts.Cached(key, func() ([]byte, error) {
		return charts.CovariancePairs("Highest covariance pairs", res.Highest)
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("covariance chart failed")
		return
	}
	h.sendPhoto(chatID, "cov.png", img, "")
}

func (h *Handlers) handleMembership(chatID int64, sess *Session, txt string) {
	active, ok := sess.Portfolios.Active()
	if !ok {
		h.reply(chatID, "No active portfolio. Use /pcreate NAME first.")
		return
	}
	add := rePAdd.MatchString(txt)
	var field string
	if add {
		field = rePAdd.FindStringSubmatch(txt)[1]
	} else {
		field = rePRm.FindStringSubmatch(txt)[1]
	}
	var changed []string
	for _, t := range parseTickers(field) {
		if add && sess.Portfolios.AddStock(t) || !add && sess.Portfolios.RemoveStock(t) {
			changed = append(changed, t)
		}
	}
	verb := "Added"
	if !add {
		verb = "Removed"
	}
	h.reply(chatID, fmt.Sprintf("%s %s • %s: %s", verb, joinOrDash(changed), active, joinOrDash(sess.Portfolios.GetStocks(active))))
}

func (h *Handlers) handleList(chatID int64, sess *Session) {
	names := sess.Portfolios.ListNames()
	if len(names) == 0 {
		h.reply(chatID, "No portfolios yet. Use /pcreate NAME.")
		return
	}
	active, _ := sess.Portfolios.Active()
	var b strings.Builder
	for _, n := range names {
		mark := "  "
		if n == active {
			mark = "* "
		}
		fmt.Fprintf(&b, "%s%s: %s\n", mark, n, joinOrDash(sess.Portfolios.GetStocks(n)))
	}
	h.reply(chatID, b.String())
}

func (h *Handlers) handleSeries(chatID int64, sess *Session, g []string) {
	name := g[1]
	tickers := sess.Portfolios.GetStocks(name)
	if len(tickers) == 0 {
		h.reply(chatID, fmt.Sprintf("Portfolio %q is unknown or empty.", name))
		return
	}
	freq, err := market.ParseFrequency(g[2])
	if err != nil {
		h.reply(chatID, err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", g[3])
	end, _ := time.Parse("2006-01-02", g[4])
	if end.Before(start) {
		h.reply(chatID, "END must not be before START.")
		return
	}
	norm := g[5] != ""

	store, ver := h.snapshot()
	key := fmt.Sprintf("series|%d|%s|%s|%s|%s|%t", ver, strings.Join(tickers, ","), freq, g[3], g[4], norm)
	img, err := h.deps.Charts.Cached(key, func() ([]byte, error) {
		frame := store.Resample(tickers, freq, start, end)
		if norm {
			frame = market.Normalize(frame)
		}
		return charts.TimeSeries(fmt.Sprintf("%s (%s)", name, freq), frame)
	})
	if errors.Is(err, charts.ErrNothingToDraw) {
		h.reply(chatID, "No prices for that portfolio in the requested range.")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("series chart failed")
		h.reply(chatID, "Failed to draw the series: "+err.Error())
		return
	}
	h.sendPhoto(chatID, "series.png", img, fmt.Sprintf("%s • %s • %s to %s", name, freq, g[3], g[4]))
}

// resolveTickers expands "@name" to a portfolio's members.
func (h *Handlers) resolveTickers(sess *Session, field string) ([]string, error) {
	field = strings.TrimSpace(field)
	if strings.HasPrefix(field, "@") {
		name := strings.TrimPrefix(field, "@")
		tickers := sess.Portfolios.GetStocks(name)
		if len(tickers) == 0 {
			return nil, fmt.Errorf("portfolio %q is unknown or empty", name)
		}
		return tickers, nil
	}
	tickers := parseTickers(field)
	if len(tickers) == 0 {
		return nil, errors.New("please provide at least one ticker")
	}
	return tickers, nil
}

// scoreNews loads and classifies articles for tickers. Imported articles are
// persisted first so their scores can be cached by id.
func (h *Handlers) scoreNews(ctx context.Context, tickers []string) ([]sentiment.Scored, error) {
	if h.deps.News == nil || h.deps.Scorer == nil {
		return nil, errors.New("news sentiment is not configured")
	}
	arts, err := h.deps.News.Load(ctx, tickers)
	if err != nil {
		return nil, err
	}
	if h.deps.Persist != nil && len(arts) > 0 {
		saved, err := h.deps.Persist.SaveArticles(ctx, arts)
		if err != nil {
			h.log.Warn().Err(err).Msg("saving articles failed")
		} else {
			arts = saved
		}
	}
	return h.deps.Scorer.ScoreArticles(ctx, arts)
}

func (h *Handlers) handleNews(ctx context.Context, chatID int64, tickers []string, weekly bool) {
	scored, err := h.scoreNews(ctx, tickers)
	if err != nil {
		h.log.Error().Err(err).Strs("tickers", tickers).Msg("news scoring failed")
		h.reply(chatID, "Failed to score news: "+err.Error())
		return
	}
	if len(scored) == 0 {
		h.reply(chatID, "No news found for "+strings.Join(tickers, ", ")+".")
		return
	}

	var labels []sentiment.Label
	if weekly {
		rows := sentiment.Weekly(scored, h.deps.Scorer.Strategy())
		for _, r := range rows {
			labels = append(labels, r.Label)
		}
		h.reply(chatID, formatWeekly(rows))
	} else {
		labels = sentiment.LabelsOf(scored)
		h.reply(chatID, formatScored(scored, newsListLimit))
	}

	img, err := charts.LabelDistribution("Sentiment • "+strings.Join(tickers, ", "), sentiment.Distribution(labels))
	if err != nil {
		h.log.Warn().Err(err).Msg("distribution chart failed")
		return
	}
	h.sendPhoto(chatID, "sentiment.png", img, "")
}

func (h *Handlers) handleDigest(ctx context.Context, chatID int64, tickers []string) {
	if h.deps.Digest == nil {
		h.reply(chatID, "Digest is not configured (needs OPENAI_API_KEY).")
		return
	}
	scored, err := h.scoreNews(ctx, tickers)
	if err != nil {
		h.reply(chatID, "Failed to score news: "+err.Error())
		return
	}
	out, err := h.deps.Digest.Summarize(ctx, scored)
	if err != nil {
		h.log.Error().Err(err).Msg("digest failed")
		h.reply(chatID, "Failed to summarize: "+err.Error())
		return
	}
	h.reply(chatID, truncate(out))
}

func (h *Handlers) handleSentences(ctx context.Context, chatID int64, ticker, text string) {
	if h.deps.Scorer == nil {
		h.reply(chatID, "News sentiment is not configured.")
		return
	}
	res, err := h.deps.Scorer.SentenceSentiments(ctx, text, ticker)
	if err != nil {
		h.reply(chatID, "Failed to classify: "+err.Error())
		return
	}
	if len(res) == 0 {
		h.reply(chatID, "No sentence mentions "+ticker+".")
		return
	}
	var b strings.Builder
	for _, r := range res {
		fmt.Fprintf(&b, "[%s] %s (pos %.2f • neg %.2f • neu %.2f)\n",
			r.Sentiment, r.Sentence, r.Probabilities.Positive, r.Probabilities.Negative, r.Probabilities.Neutral)
	}
	h.reply(chatID, truncate(b.String()))
}

func joinOrDash(xs []string) string {
	if len(xs) == 0 {
		return "-"
	}
	return strings.Join(xs, ", ")
}

func (h *Handlers) sendPhoto(chatID int64, name string, img []byte, caption string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: img})
	photo.Caption = caption
	if _, err := h.api.Send(photo); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("send photo failed")
	}
}

func (h *Handlers) reply(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

func (h *Handlers) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}

const helpText = `Commands:
• /prices T1 T2 … [1m|3m|6m|1y|2y|5y|10y|ytd|max] - fetch daily prices
• /risk [local|global] - annual return, volatility and Sharpe table
• /view volMin volMax retMin retMax - set the viewport
• /home - reset the viewport to all tickers
• /filter sMin sMax vMin vMax rMin rMax - filter the local table
• /cml - Capital Market Line for the viewport
• /inspect vol ret - nearest ticker to a point
• /cov [portfolio] - highest and lowest covariance pairs
• /pcreate NAME, /puse NAME - create or select a portfolio
• /padd T…, /prm T… - edit the active portfolio
• /plist - list portfolios
• /series NAME daily|monthly|yearly START END [norm] - price chart
• /news T…|@portfolio [weekly] - news sentiment
• /digest T…|@portfolio - AI summary of classified headlines
• /sentences TICKER text - sentiment of each sentence mentioning TICKER
• /help - this message`
