package alerting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// NtfyNotifier publishes plain-text messages to an ntfy topic.
type NtfyNotifier struct {
	server string
	topic  string
	token  string
	client *http.Client
	logger zerolog.Logger
}

// NewNtfyNotifier 构造 ntfy 告警器。
func NewNtfyNotifier(server, topic, token string, timeout time.Duration, logger zerolog.Logger) *NtfyNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &NtfyNotifier{
		server: strings.TrimRight(server, "/"),
		topic:  strings.Trim(topic, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_ntfy").Logger(),
	}
}

// Notify POSTs the body to server/topic with an ASCII-only Title header.
func (n *NtfyNotifier) Notify(ctx context.Context, note Notification) error {
	url := fmt.Sprintf("%s/%s", n.server, n.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(note.Body))
	if err != nil {
		return fmt.Errorf("create ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title := asciiTitle(note.Title); title != "" {
		req.Header.Set("Title", title)
	}
	if len(note.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(note.Tags, ","))
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().Str("topic", n.topic).Str("title", note.Title).Msg("告警已发送 (ntfy)")
	return nil
}

// asciiTitle drops non-ASCII runes; HTTP header values cannot carry them.
func asciiTitle(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var _ Notifier = (*NtfyNotifier)(nil)
