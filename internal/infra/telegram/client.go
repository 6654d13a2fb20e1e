package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Client posts desk alerts into the restaurant's staff chats.
type Client struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	logger  *slog.Logger
	limiter *rate.Limiter
}

func NewClient(token string, chatIDs []int64, logger *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	// Bot API allows 30 messages per second
	limiter := rate.NewLimiter(30, 1)

	return &Client{
		api:     bot,
		chatIDs: chatIDs,
		logger:  logger,
		limiter: limiter,
	}, nil
}

// SendMessage sends one message with rate limiting
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.api.Send(msg)
	if err != nil {
		c.logger.Error("Failed to send message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// Broadcast sends text to every configured chat. It stops at the first failure.
func (c *Client) Broadcast(ctx context.Context, text string) error {
	for _, id := range c.chatIDs {
		if err := c.SendMessage(ctx, id, text); err != nil {
			return err
		}
	}
	return nil
}
