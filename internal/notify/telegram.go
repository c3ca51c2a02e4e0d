package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/autopost/models"
	"autoposter/internal/config"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// maxListedFailures 单条消息中最多列出的失败帖子数
const maxListedFailures = 10

// Sender 发送 Telegram 消息（*bot.Bot 实现）
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
}

// TelegramNotifier 把有失败的运行摘要发送到运维群
type TelegramNotifier struct {
	sender Sender
	chatID int64
}

// NewTelegramNotifier 使用已有 Sender 创建通知器
func NewTelegramNotifier(sender Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID}
}

// NewFromConfig 根据配置创建 Telegram 通知器
func NewFromConfig(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("telegram notifier requires TELEGRAM_TOKEN and TELEGRAM_CHAT_ID")
	}
	// 仅用于发送消息，不需要启动时调用 getMe
	b, err := bot.New(cfg.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramNotifier(b, cfg.ChatID), nil
}

// NotifyRun 只有出现错误时才发送
func (n *TelegramNotifier) NotifyRun(ctx context.Context, summary *coordinator.Summary) error {
	if summary == nil || summary.Errors == 0 {
		return nil
	}
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatSummary(summary),
		ParseMode: botModels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send run summary to chat %d: %w", n.chatID, err)
	}
	return nil
}

func formatSummary(summary *coordinator.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ <b>Auto-post run</b> <code>%s</code>\n", html.EscapeString(summary.RunID))
	fmt.Fprintf(&sb, "processed: %d, posted: %d, errors: %d\n", summary.TotalProcessed, summary.Posted, summary.Errors)

	listed := 0
	for _, r := range summary.Results {
		if r.Outcome != models.OutcomeFailed && r.Outcome != models.OutcomeRetry {
			continue
		}
		if listed == maxListedFailures {
			fmt.Fprintf(&sb, "… and %d more\n", summary.Errors-listed)
			break
		}
		listed++
		name := r.Title
		if name == "" {
			name = r.ID
		}
		fmt.Fprintf(&sb, "\n• %s/%s [%s]\n  %s", html.EscapeString(r.Collection), html.EscapeString(name), r.Outcome, html.EscapeString(r.Error))
	}
	return sb.String()
}
