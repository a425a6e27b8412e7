package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// discordContentLimit is the maximum message length Discord accepts.
const discordContentLimit = 2000

// DiscordSink posts messages to a Discord webhook.
type DiscordSink struct {
	url    string
	client *http.Client
}

func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSink) Name() string { return "discord" }

func (d *DiscordSink) Send(ctx context.Context, message string) (Receipt, error) {
	body, err := json.Marshal(map[string]string{"content": truncate(message, discordContentLimit)})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return Receipt{
		StatusCode: resp.StatusCode,
		OK:         resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent,
	}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
