package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTelegramAPI = "https://api.telegram.org"

	// ViewActionPrefix prefixes the callback data of the digest view button.
	ViewActionPrefix = "view_digest:"
)

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewTelegram(client *http.Client, baseURL, token string) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &Telegram{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: 30 * time.Second,
	}
}

// Send delivers text to the chat subscriberID. A non-empty actionRef adds a button that opens the
// digest.
func (t *Telegram) Send(ctx context.Context, subscriberID, text, actionRef string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("chat_id", subscriberID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	if actionRef != "" {
		markup, err := json.Marshal(inlineKeyboard{InlineKeyboard: [][]inlineButton{{
			{Text: "Просмотреть все новости", CallbackData: ViewActionPrefix + actionRef},
		}}})
		if err != nil {
			return fmt.Errorf("failed to encode keyboard: %w", err)
		}
		form.Set("reply_markup", string(markup))
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result telegramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("HTTP %d: invalid response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, result.Description)
	}

	return nil
}

// LogNotifier writes notifications to the log. Used when no bot token is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, subscriberID, text, actionRef string) error {
	slog.Info("Notification", "subscriber", subscriberID, "action_ref", actionRef, "text", text)
	return nil
}
