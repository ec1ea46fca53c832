package notify

import (
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier Telegram 消息通知
// 发送是异步的，通知失败绝不影响交易流程。
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier 创建 Telegram 通知器
func NewTelegramNotifier(token, chatID string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Telegram通知已启用: @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: NormalizeChatID(chatID)}, nil
}

// NormalizeChatID 归一化聊天ID
// 超级群ID常被抄成 "100xxxx" 漏掉负号，这里自动补 "-" 前缀
func NormalizeChatID(chatID string) int64 {
	s := strings.TrimSpace(chatID)
	if strings.HasPrefix(s, "100") {
		s = "-" + s
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Printf("⚠️ 无效的Telegram chatID: %q", chatID)
		return 0
	}
	return id
}

// Notify 异步发送消息
func (n *TelegramNotifier) Notify(message string) {
	go func() {
		msg := tgbotapi.NewMessage(n.chatID, message)
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("⚠️ Telegram通知发送失败: %v", err)
		}
	}()
}
