package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers a plain text message to a chat recipient. The full menu
// and keyboard surface lives outside this core; reconciliation only needs to
// tell someone something happened.
type Notifier interface {
	Send(ctx context.Context, recipientID, text string) error
}

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewTelegramNotifier builds a notifier for the given bot token. baseURL is
// overridable for tests; empty means the public API endpoint.
func NewTelegramNotifier(token, baseURL string, timeout time.Duration) *TelegramNotifier {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
	}
}

func (n *TelegramNotifier) Send(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": recipientID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", recipientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification to %s rejected: status %d: %s", recipientID, resp.StatusCode, string(raw))
	}
	return nil
}

// NopNotifier drops every message. Used when no chat backend is configured.
type NopNotifier struct{}

func (NopNotifier) Send(ctx context.Context, recipientID, text string) error { return nil }
