package service

import (
	"context"
	"errors"

	"barangay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotWrapper adapts the bot API client to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func NewBotWrapper(bot *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: bot}
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

// TelegramService delivers borrowing notifications through a Telegram bot.
// Residents link their portal account to the bot, so a user id is their chat id.
type TelegramService struct {
	bot         domain.TelegramSender
	staffChatID int64
}

func NewTelegramService(bot domain.TelegramSender, staffChatID int64) *TelegramService {
	return &TelegramService{
		bot:         bot,
		staffChatID: staffChatID,
	}
}

func (s *TelegramService) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := s.bot.Send(msg)
	return err
}

func (s *TelegramService) NotifyStaff(ctx context.Context, text string) error {
	if s.staffChatID == 0 {
		return errors.New("staff chat is not configured")
	}
	return s.SendMessage(ctx, s.staffChatID, text)
}

func (s *TelegramService) NotifyUser(ctx context.Context, userID int64, text string) error {
	return s.SendMessage(ctx, userID, text)
}
