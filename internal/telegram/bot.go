package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"ai-fitness-planner/internal/app"
	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
	"ai-fitness-planner/internal/render"
	"ai-fitness-planner/internal/storage"
)

// messageLimit is Telegram's maximum message length.
const messageLimit = 4096

const historyLimit = 5

// progressInterval throttles progress edits; Telegram rejects rapid edits
// of the same message.
const progressInterval = 1500 * time.Millisecond

// botAPI is the part of tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the fitness planner.
type Bot struct {
	api    botAPI
	app    *app.App
	cfg    *config.Config
	logger *slog.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, application *app.App, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("Authorized on Telegram", "account", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("Webhook set", "description", resp.Description)

	return newBot(api, application, cfg, logger), nil
}

func newBot(api botAPI, application *app.App, cfg *config.Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{api: api, app: application, cfg: cfg, logger: logger}
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", b.handleWebhook)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("Error parsing update", "error", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !b.isAllowed(msg.From.ID) {
		b.logger.Warn("Unauthorized access attempt", "user_id", msg.From.ID, "username", msg.From.UserName)
		return
	}

	go b.processMessage(context.Background(), msg)
}

func (b *Bot) isAllowed(userID int64) bool {
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if userID == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sendMarkdown(chatID, helpText)
		b.app.Prewarm(ctx, userID)
	case "help":
		b.sendMarkdown(chatID, helpText)
	case "demo":
		b.runGeneration(ctx, chatID, userID, func(ctx context.Context) (generator.State, error) {
			return b.app.GenerateDemo(ctx, userID)
		})
	case "cancel":
		b.app.Cancel(userID)
		b.sendMarkdown(chatID, "🛑 Generation cancelled.")
	case "history":
		b.handleHistory(ctx, chatID, userID)
	case "plan":
		b.handleShowPlan(ctx, chatID, userID, msg.CommandArguments())
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	case "":
		b.runGeneration(ctx, chatID, userID, func(ctx context.Context) (generator.State, error) {
			return b.app.Generate(ctx, userID, msg.Text)
		})
	default:
		b.sendMarkdown(chatID, "🤔 Unknown command.\n\n"+helpText)
	}
}

const helpText = "Send me your fitness goals and I will build a 7-day plan.\n\n" +
	"/demo - preview a sample plan\n" +
	"/history - your recent plans\n" +
	"/plan - show your latest plan\n" +
	"/plan <id> - show a saved plan\n" +
	"/cancel - stop the current generation"

// runGeneration posts a status message, keeps it updated with progress and
// replaces it with the outcome.
func (b *Bot) runGeneration(ctx context.Context, chatID int64, userID string, run func(context.Context) (generator.State, error)) {
	sent, err := b.api.Send(markdownMessage(chatID, "🏋️ *Thinking...*\n(Building your fitness plan)"))
	if err != nil {
		b.logger.Warn("Failed to send initial reply", "error", err)
		return
	}

	updates, unsubscribe := b.app.Controller(userID).Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.followProgress(chatID, sent.MessageID, updates)
	}()

	s, err := run(ctx)
	unsubscribe()
	<-done

	if errors.Is(err, generator.ErrBusy) {
		b.edit(chatID, sent.MessageID, "⏳ A plan is already being generated. Send /cancel to stop it.")
		return
	}

	parts := formatOutcome(s, err)
	b.edit(chatID, sent.MessageID, parts[0])
	for _, p := range parts[1:] {
		b.sendMarkdown(chatID, p)
	}
}

func (b *Bot) followProgress(chatID int64, messageID int, updates <-chan generator.State) {
	throttle := rate.Sometimes{Interval: progressInterval}
	last := ""
	for s := range updates {
		if s.Phase != generator.Generating || s.ProgressMessage == last {
			continue
		}
		text := formatProgress(s)
		throttle.Do(func() {
			last = s.ProgressMessage
			b.edit(chatID, messageID, text)
		})
	}
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, userID string) {
	entries, err := b.app.History(ctx, userID, historyLimit)
	if err != nil {
		b.logger.Warn("Failed to list history", "user_id", userID, "error", err)
		b.sendMarkdown(chatID, "❌ Error fetching your plans.")
		return
	}
	b.sendMarkdown(chatID, formatHistory(entries))
}

func (b *Bot) handleShowPlan(ctx context.Context, chatID int64, userID, arg string) {
	if strings.TrimSpace(arg) == "" {
		b.handleLatestPlan(chatID, userID)
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		b.sendMarkdown(chatID, "Usage: /plan <id> (see /history)")
		return
	}
	e, err := b.app.Plan(ctx, userID, id)
	if errors.Is(err, history.ErrNotFound) {
		b.sendMarkdown(chatID, "Plan not found. See /history for your plans.")
		return
	}
	if err != nil {
		b.logger.Warn("Failed to load plan", "user_id", userID, "plan_id", id, "error", err)
		b.sendMarkdown(chatID, "❌ Error fetching your plans.")
		return
	}
	for _, part := range render.MarkdownParts(e.Plan) {
		b.sendMarkdown(chatID, part)
	}
}

func (b *Bot) handleLatestPlan(chatID int64, userID string) {
	plan, err := b.app.LatestPlan(userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMarkdown(chatID, "You have no saved plans yet. Send me your goals to build one.")
		return
	}
	if err != nil {
		b.logger.Warn("Failed to load latest plan", "user_id", userID, "error", err)
		b.sendMarkdown(chatID, "❌ Error fetching your plans.")
		return
	}
	for _, part := range render.MarkdownParts(*plan) {
		b.sendMarkdown(chatID, part)
	}
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.TelegramAdminID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}
	report, err := b.app.MetricsReport(ctx)
	if err != nil {
		b.logger.Warn("Failed to build metrics report", "error", err)
		b.sendMarkdown(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "📊 Usage & Health Report\n\n"+report))
}

// SendAdminAlert forwards an operational alert to the admin, if one is set.
func (b *Bot) SendAdminAlert(text string) {
	if b.cfg.TelegramAdminID == 0 {
		return
	}
	b.sendMarkdown(b.cfg.TelegramAdminID, text)
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	if _, err := b.api.Send(markdownMessage(chatID, text)); err != nil {
		b.logger.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("Failed to edit message", "chat_id", chatID, "error", err)
	}
}

func markdownMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}
