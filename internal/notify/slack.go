package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SlackWebhook posts the short-text rendering to an incoming webhook.
// Delivery is channel-level: once per job, not per recipient.
type SlackWebhook struct {
	http *http.Client
}

func NewSlackWebhook(timeout time.Duration) *SlackWebhook {
	return &SlackWebhook{http: &http.Client{Timeout: timeout}}
}

func (s *SlackWebhook) Post(ctx context.Context, webhookURL string, text string) error {
	if s == nil || s.http == nil {
		return errors.New("slack webhook client not initialized")
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}
	return nil
}
