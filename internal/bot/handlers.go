package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"viralscope/internal/calibration"
	"viralscope/internal/model"
	"viralscope/internal/storage"
	"viralscope/internal/usage"
)

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Rules:
/rules - list all rules with weight and accuracy
/rule <id> - rule details
/pause <id> - stop evaluating a rule
/resume <id> - evaluate a paused rule again

Calibration:
/validate - run rule calibration now

Lookups:
/result <analysis_id> - analysis summary
/usage <user_id> - analyses counted today (UTC)`)
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rule <id>")
		return
	}

	rule, err := b.store.GetRule(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule %q not found.", id))
		return
	}

	action, label := cmdPause, "Pause"
	if !rule.IsActive {
		action, label = cmdResume, "Resume"
	}
	msg := tgbotapi.NewMessage(chatID, FormatRuleInfo(rule))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, action+":"+rule.ID),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send rule info", "error", err)
	}
}

// handleSetActive flips is_active. Calibration fields are left untouched.
func (b *Bot) handleSetActive(ctx context.Context, chatID int64, args string, active bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if active {
			b.reply(chatID, "Usage: /resume <id>")
		} else {
			b.reply(chatID, "Usage: /pause <id>")
		}
		return
	}

	rule, err := b.store.GetRule(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule %q not found.", id))
		return
	}

	rule.IsActive = active
	if err := b.store.UpsertRule(ctx, rule); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	state := "paused"
	if active {
		state = "resumed"
	}
	b.log.Info("rule state changed", "rule_id", id, "active", active)
	b.reply(chatID, fmt.Sprintf("Rule %q %s.", id, state))
}

func (b *Bot) handleValidateConfirm(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Run rule calibration now? Every run adds the window's outcomes to sample counts.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Run now", cmdValidate+":now"),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send validate confirmation", "error", err)
	}
}

func (b *Bot) handleValidate(ctx context.Context, chatID int64) {
	_, err := b.runner.Run(ctx)
	switch {
	case errors.Is(err, calibration.ErrRunInProgress):
		b.reply(chatID, "A calibration run is already in progress.")
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Calibration failed: %v", err))
	}
	// A successful run notifies the operator chat itself.
}

func (b *Bot) handleResult(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /result <analysis_id>")
		return
	}

	result, err := b.store.GetResult(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Analysis %s not found.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatResult(result))
}

func (b *Bot) handleUsage(ctx context.Context, chatID int64, args string) {
	userID, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /usage <user_id>")
		return
	}

	day := usage.Day(time.Now())
	n, err := b.usage.GetUsage(ctx, userID, day, model.PeriodDaily)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("%s: %d analyses on %s.", userID, n, day.Format("2006-01-02")))
}
