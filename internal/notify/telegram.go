package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender 通过 Bot API 把离线消息推送到用户绑定的 Telegram 会话。
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramSender{bot: bot}, nil
}

func (s *TelegramSender) Send(job Job) error {
	msg := tgbotapi.NewMessage(job.TgChatID, formatJob(job))
	_, err := s.bot.Send(msg)
	return err
}

// formatJob 生成通知正文，格式与网页端展示保持一致。
func formatJob(job Job) string {
	return fmt.Sprintf("Sender: %s\nMessage: %s\nDate: %s",
		job.SenderNick, job.Content, job.SentAt.Format("02-01-2006 15:04"))
}
