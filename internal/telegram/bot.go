package telegram

import (
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type Bot struct {
	api *tgbotapi.BotAPI
	h   *Handlers
	log zerolog.Logger
}

// NewBot connects to the Bot API and registers webhookURL for updates.
func NewBot(token, webhookURL string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	webhook, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	if _, err := api.Request(webhook); err != nil {
		return nil, err
	}
	log := deps.Log.With().Str("component", "bot").Logger()
	log.Info().Str("url", webhookURL).Str("username", api.Self.UserName).Msg("webhook set")

	return &Bot{api: api, h: NewHandlers(api, deps), log: log}, nil
}

func (b *Bot) Handlers() *Handlers { return b.h }

// WebhookHandler is registered at /telegram/webhook.
func (b *Bot) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	serveUpdate(b.h, b.log, w, r)
}

func serveUpdate(h *Handlers, log zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	if update.Message == nil {
		log.Debug().Int("update_id", update.UpdateID).Msg("non-message update")
		w.WriteHeader(http.StatusOK)
		return
	}
	ev := log.Debug().Int64("chat_id", update.Message.Chat.ID).Str("text", update.Message.Text)
	if update.Message.From != nil {
		ev = ev.Int64("from", update.Message.From.ID)
	}
	ev.Msg("webhook")
	go h.HandleMessage(update.Message)
	w.WriteHeader(http.StatusOK)
}
