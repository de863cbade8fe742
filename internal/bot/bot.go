// Package bot is the Telegram operator console: it delivers operator
// notifications and answers rule and calibration commands from the operator chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"viralscope/internal/calibration"
	"viralscope/internal/storage"
	"viralscope/internal/usage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Store is the persistence the console reads and edits.
type Store interface {
	storage.RuleStore
	storage.ResultStore
}

// Bot serves the operator chat.
type Bot struct {
	api    telegramAPI
	store  Store
	usage  usage.Counter
	runner calibration.Runner
	chatID int64
	log    *slog.Logger
}

// New creates a Bot bound to the operator chat.
// counter is the backend the usage gate counts with.
func New(token string, chatID int64, store Store, counter usage.Counter, runner calibration.Runner, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		store:  store,
		usage:  counter,
		runner: runner,
		chatID: chatID,
		log:    log,
	}, nil
}

// Run starts the long-polling loop, blocking until ctx is cancelled.
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
				if update.CallbackQuery.Message == nil || update.CallbackQuery.Message.Chat.ID != b.chatID {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Notify sends text to the operator chat.
func (b *Bot) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send operator message: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "help":
		b.handleHelp(chatID)
	case "rules":
		b.handleRules(ctx, chatID)
	case "rule":
		b.handleRule(ctx, chatID, args)
	case cmdPause:
		b.handleSetActive(ctx, chatID, args, false)
	case cmdResume:
		b.handleSetActive(ctx, chatID, args, true)
	case cmdValidate:
		b.handleValidateConfirm(chatID)
	case "result":
		b.handleResult(ctx, chatID, args)
	case "usage":
		b.handleUsage(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// LogNotifier writes operator messages to the log. It stands in for the
// Telegram console when no bot token is configured.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify implements the operator notifier.
func (n LogNotifier) Notify(_ context.Context, text string) error {
	n.Log.Info("operator notification", "text", text)
	return nil
}
