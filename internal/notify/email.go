package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"firelater-orchestrator/shared/config"
)

type Email struct {
	To         string `json:"to"`
	Type       string `json:"type"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
	TenantSlug string `json:"tenant_slug"`
}

type relayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Relay delivers email through the HTTP relay service.
type Relay struct {
	baseURL string
	http    *http.Client
}

func NewRelay(cfg config.Config) (*Relay, error) {
	if cfg.EmailRelayURL == "" {
		return nil, errors.New("EMAIL_RELAY_URL is required")
	}
	return &Relay{
		baseURL: cfg.EmailRelayURL,
		http:    &http.Client{Timeout: time.Duration(cfg.EmailRelayTimeoutMS) * time.Millisecond},
	}, nil
}

func (r *Relay) Send(ctx context.Context, msg Email) error {
	if r == nil || r.http == nil {
		return errors.New("email relay not initialized")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email relay status %d", resp.StatusCode)
	}
	var out relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Success {
		if out.Error != "" {
			return errors.New("email relay: " + out.Error)
		}
		return errors.New("email relay reported failure")
	}
	return nil
}
