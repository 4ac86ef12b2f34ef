package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

const telegramAPI = "https://api.telegram.org"

// TelegramChannel posts alerts to a Telegram chat
type TelegramChannel struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	limiter *safety.RateLimiter
}

// NewTelegramChannel creates a Telegram channel. Sends are throttled to stay
// under the bot API's per-chat limit.
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: safety.NewRateLimiter("telegram", 20, 1),
	}
}

// Name implements alerts.Channel
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Deliver implements alerts.Channel
func (t *TelegramChannel) Deliver(ctx context.Context, alert alerts.Alert) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", FormatAlert(alert))
	data.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
