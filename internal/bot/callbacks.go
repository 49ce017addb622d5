package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"loginwatch/internal/model"
)

const (
	cmdTargets = "targets"
	cmdHistory = "history"
	cmdDiff    = "diff"
	cmdCheck   = "check"
	cmdRules   = "rules"
)

// handleCallback serves the buttons attached to alerts. Button data is
// "<action>:<capture id>".
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	c, err := b.store.Get(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Capture #%d not found.", id))
		return
	}
	t := b.targetOf(c.TargetID)

	switch action {
	case cmdDiff:
		prev, err := b.previous(ctx, c)
		if err != nil {
			b.reply(chatID, err.Error())
			return
		}
		b.sendDiff(chatID, t, prev, c)
	case cmdHistory:
		captures, err := b.store.Recent(ctx, c.TargetID, defaultHistory)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, FormatHistory(t, captures))
	}
}

// previous returns the capture stored right before c for the same target.
func (b *Bot) previous(ctx context.Context, c *model.Capture) (*model.Capture, error) {
	history, err := b.store.History(ctx, c.TargetID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for i := range history {
		if history[i].ID == c.ID {
			if i == 0 {
				return nil, fmt.Errorf("capture #%d is the first capture of its target", c.ID)
			}
			return &history[i-1], nil
		}
	}
	return nil, fmt.Errorf("capture #%d not found in history", c.ID)
}

// targetOf finds a scheduled target by id, or a bare one for removed targets.
func (b *Bot) targetOf(id string) model.Target {
	for _, t := range b.monitor.Targets() {
		if t.ID == id {
			return t
		}
	}
	return model.Target{ID: id}
}
