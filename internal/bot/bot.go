// Package bot sends monitoring alerts to Telegram and answers operator
// commands about targets and their capture history.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"loginwatch/internal/config"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/report"
	"loginwatch/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Monitor is the scheduler surface the bot commands use.
type Monitor interface {
	Targets() []model.Target
	Ruleset(targetID string) (*normalize.Ruleset, bool)
	CheckTarget(ctx context.Context, targetID string) (report.Event, error)
}

// Bot is the Telegram bot that handles operator commands and sends alerts.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	monitor Monitor
	cfg     *config.Config
	log     *slog.Logger
}

var _ report.Reporter = (*Bot)(nil)

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log,
	}, nil
}

// SetMonitor connects the bot to the scheduler. It must be called before Run.
func (b *Bot) SetMonitor(m Monitor) {
	b.monitor = m
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// Report implements report.Reporter. Only content changes are pushed to the
// alert chats; fetch failures surface through ReportFailure once they persist.
func (b *Bot) Report(_ context.Context, ev report.Event) error {
	if ev.Classification != model.ContentChanged || ev.Capture == nil {
		return nil
	}
	text := FormatAlert(ev)
	for _, chatID := range b.cfg.AlertChats {
		msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Full diff", fmt.Sprintf("%s:%d", cmdDiff, ev.Capture.ID)),
				tgbotapi.NewInlineKeyboardButtonData("History", fmt.Sprintf("%s:%d", cmdHistory, ev.Capture.ID)),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send alert to %d: %w", chatID, err)
		}
	}
	return nil
}

// ReportFailure implements report.Reporter.
func (b *Bot) ReportFailure(_ context.Context, targetID string, err error) error {
	text := FormatFailure(targetID, err)
	for _, chatID := range b.cfg.AlertChats {
		b.SendMessage(chatID, text)
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdTargets:
		b.handleTargets(ctx, chatID)
	case cmdHistory:
		b.handleHistory(ctx, chatID, args)
	case cmdDiff:
		b.handleDiff(ctx, chatID, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case cmdRules:
		b.handleRules(chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
