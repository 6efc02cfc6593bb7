package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bithumbot/internal/events"
	"bithumbot/internal/logging"
)

// LogSink is the always-on fallback sink: it writes every event through
// internal/logging so nothing is silently lost even with no external
// transport configured.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{log: logging.Default().WithComponent("notify.log")}
}

func (s *LogSink) Notify(ctx context.Context, e events.Event) error {
	l := s.log.WithField("type", string(e.Type))
	if e.Coin != "" {
		l = l.WithField("coin", e.Coin)
	}
	if e.Data != nil {
		l = l.WithFields(e.Data)
	}
	l.Info("lifecycle event")
	return nil
}

// TelegramSink pushes events as chat messages to a configured chat via the
// bot API.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink builds a TelegramSink. An empty token disables the sink
// (Notify becomes a no-op) rather than failing construction, so a deployment
// with no Telegram configured still builds a working notification fan-out.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	if token == "" {
		return &TelegramSink{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Notify(ctx context.Context, e events.Event) error {
	if s.bot == nil || s.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(s.chatID, formatEvent(e))
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := s.bot.Send(msg)
	return err
}

// DiscordSink posts events to a Discord webhook as color-coded embeds.
type DiscordSink struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSink builds a DiscordSink. An empty webhookURL disables the
// sink.
func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *DiscordSink) Notify(ctx context.Context, e events.Event) error {
	if s.webhookURL == "" {
		return nil
	}
	color := 0x2ECC71
	if e.Type == events.EventError || e.Type == events.EventFullExit {
		color = 0xE74C3C
	}
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       string(e.Type),
			"description": formatEvent(e),
			"color":       color,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func formatEvent(e events.Event) string {
	msg := string(e.Type)
	if e.Coin != "" {
		msg += " " + e.Coin
	}
	for k, v := range e.Data {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	return msg
}
