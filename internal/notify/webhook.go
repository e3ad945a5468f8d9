package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"suratline/internal/config"
	"suratline/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each entry as JSON.
type WebhookSink struct {
	hook   config.WebhookConfig
	client *http.Client
}

func NewWebhookSink(hook config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{hook: hook, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Name() string { return "webhook " + s.hook.URL }

func (s *WebhookSink) Deliver(ctx context.Context, entry domain.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Suratline-Event", entry.Type)
	req.Header.Set("X-Suratline-Delivery", fmt.Sprintf("%d", entry.Seq))
	req.Header.Set("X-Suratline-Report", entry.ReportID)
	if strings.TrimSpace(s.hook.Secret) != "" {
		req.Header.Set("X-Suratline-Secret", s.hook.Secret)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
