package bot

import (
	"context"
	"errors"
	"fmt"

	"loginwatch/internal/detector"
	"loginwatch/internal/diff"
	"loginwatch/internal/model"
	"loginwatch/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to loginwatch!

This bot watches login pages and alerts when their content changes beyond
tokens, timestamps and other masked dynamic fields.

Quick start:
1. /targets — list monitored pages
2. /history <n> — recent captures of target #n
3. /diff <n> — compare the two latest captures

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Targets:
/targets — show all monitored pages
/check <n> — capture target #n now
/rules <n> — masking rules active for target #n

History:
/history <n> [count] — latest captures (default 10, max 50)
/diff <n> — diff of the two latest captures
/diff <n> <id> <id> — diff of two stored captures

Targets can be given by number or by their full id.`)
}

func (b *Bot) handleTargets(ctx context.Context, chatID int64) {
	targets := b.monitor.Targets()
	latest := make(map[string]*model.Capture, len(targets))
	for _, t := range targets {
		c, err := b.store.Latest(ctx, t.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				b.log.Error("latest capture", "target", t.ID, "error", err)
			}
			continue
		}
		latest[t.ID] = c
	}
	b.reply(chatID, FormatTargetList(targets, latest))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	t, rest, err := ParseTargetArg(args, b.monitor.Targets())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /history <n> [count]", err))
		return
	}
	count, err := ParseCount(rest, defaultHistory, maxHistory)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	captures, err := b.store.Recent(ctx, t.ID, count)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(t, captures))
}

func (b *Bot) handleDiff(ctx context.Context, chatID int64, args string) {
	t, rest, err := ParseTargetArg(args, b.monitor.Targets())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /diff <n> [id id]", err))
		return
	}

	var older, newer *model.Capture
	switch len(rest) {
	case 0:
		recent, err := b.store.Recent(ctx, t.ID, 2)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		if len(recent) < 2 {
			b.reply(chatID, fmt.Sprintf("Target %s has fewer than two captures.", t.Label()))
			return
		}
		if older, err = b.store.Get(ctx, recent[1].ID); err == nil {
			newer, err = b.store.Get(ctx, recent[0].ID)
		}
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
	case 2:
		ids := make([]int64, 2)
		for i, s := range rest {
			if ids[i], err = ParseIDArg(s); err != nil {
				b.reply(chatID, err.Error())
				return
			}
		}
		if older, err = b.captureOf(ctx, t, ids[0]); err == nil {
			newer, err = b.captureOf(ctx, t, ids[1])
		}
		if err != nil {
			b.reply(chatID, err.Error())
			return
		}
	default:
		b.reply(chatID, "Usage: /diff <n> [id id]")
		return
	}

	b.sendDiff(chatID, t, older, newer)
}

// captureOf loads a capture and checks that it belongs to t.
func (b *Bot) captureOf(ctx context.Context, t model.Target, id int64) (*model.Capture, error) {
	c, err := b.store.Get(ctx, id)
	if err != nil || c.TargetID != t.ID {
		return nil, fmt.Errorf("capture #%d not found for %s", id, t.Label())
	}
	return c, nil
}

func (b *Bot) sendDiff(chatID int64, t model.Target, older, newer *model.Capture) {
	rep := diff.Render(older.RawHTML, newer.RawHTML, older.Label(), newer.Label())
	masked := older.NormalizedDigest != newer.NormalizedDigest
	if rs, ok := b.monitor.Ruleset(t.ID); ok {
		masked = detector.Changed(older.RawHTML, newer.RawHTML, rs)
	}
	b.reply(chatID, FormatDiff(t, rep, masked))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	t, _, err := ParseTargetArg(args, b.monitor.Targets())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /check <n>", err))
		return
	}

	ev, err := b.monitor.CheckTarget(ctx, t.ID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Check of %s failed: %v", t.Label(), err))
		return
	}
	b.reply(chatID, FormatCheck(ev))
}

func (b *Bot) handleRules(chatID int64, args string) {
	t, _, err := ParseTargetArg(args, b.monitor.Targets())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /rules <n>", err))
		return
	}

	rs, ok := b.monitor.Ruleset(t.ID)
	if !ok {
		b.reply(chatID, fmt.Sprintf("No rules loaded for %s.", t.Label()))
		return
	}
	b.reply(chatID, FormatRules(t, rs))
}
