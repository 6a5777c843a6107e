package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
}

func NewTelegram(apiBaseURL, token, chatID string, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		endpoint: strings.TrimRight(apiBaseURL, "/") + "/bot" + token + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	if err := t.send(ctx, FormatMessage(n)); err != nil {
		return &NotificationError{Key: n.Record.Key, Err: err}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram rejected message: %s", decoded.Description)
	}
	return nil
}
