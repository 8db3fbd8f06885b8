// Package messaging delivers chat notifications.
package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"triage_worker/core/port/out"
	"triage_worker/pkg/httputil"

	"github.com/goccy/go-json"
)

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 512

// SlackWebhook posts Block Kit messages to a Slack incoming webhook.
type SlackWebhook struct {
	url    string
	client *http.Client
}

var _ out.Notifier = (*SlackWebhook)(nil)

// NewSlackWebhook creates the notifier. A nil client uses the pooled webhook client.
func NewSlackWebhook(url string, client *http.Client) (*SlackWebhook, error) {
	if url == "" {
		return nil, errors.New("slack webhook url is empty")
	}
	if client == nil {
		client = httputil.NewClient(httputil.WebhookClientConfig())
	}
	return &SlackWebhook{url: url, client: client}, nil
}

// Send posts msg and fails on any non-2xx response.
func (s *SlackWebhook) Send(ctx context.Context, msg *out.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
