package notifier

import (
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TelegramNotifier Telegram机器人通知器
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegramNotifier 创建Telegram通知器，会调用 getMe 校验令牌
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(token, tgbot.APIEndpoint, chatID)
}

// NewTelegramNotifierWithEndpoint 使用自定义 API 地址创建Telegram通知器
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64) (*TelegramNotifier, error) {
	if chatID == 0 {
		return nil, errors.New("未配置Telegram chat_id")
	}

	b, err := tgbot.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "连接Telegram失败")
	}

	zap.L().Info("✅ 已配置Telegram通知服务",
		zap.String("bot", b.Self.UserName),
		zap.Int64("chat_id", chatID))

	return &TelegramNotifier{bot: b, chatID: chatID}, nil
}

// Name 渠道名称
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Send 发送 Markdown 消息，标题已包含在正文中
func (t *TelegramNotifier) Send(_, text string) error {
	msg := tgbot.NewMessage(t.chatID, text)
	msg.ParseMode = tgbot.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "Telegram消息发送失败")
	}
	return nil
}
