package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ampara.app/soporte/core/config"
	"ampara.app/soporte/internal/store"
)

// Deliverer pushes an alert to its targets: the team webhook and, when an SMS
// gateway is configured, every active agent with a phone number on file.
type Deliverer struct {
	httpClient *http.Client
	cfg        config.NotifyConfig
	agents     store.AgentStore
}

func NewDeliverer(cfg config.NotifyConfig, agents store.AgentStore) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		agents:     agents,
	}
}

// Deliver sends the alert to every configured target. A webhook failure is
// returned so the consumer retries; SMS failures are per-agent and only logged.
func (d *Deliverer) Deliver(ctx context.Context, msg Message) error {
	if d.cfg.WebhookURL == "" && d.cfg.SMSGatewayURL == "" {
		return errors.New("no delivery targets configured")
	}

	if d.cfg.WebhookURL != "" {
		if err := d.postJSON(ctx, d.cfg.WebhookURL, map[string]string{"text": msg.Text}); err != nil {
			return fmt.Errorf("webhook delivery: %w", err)
		}
	}

	if d.cfg.SMSGatewayURL != "" {
		d.deliverSMS(ctx, msg)
	}

	return nil
}

func (d *Deliverer) deliverSMS(ctx context.Context, msg Message) {
	agents, err := d.agents.ListActive(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load agent roster for sms fan-out", "error", err)
		return
	}

	for _, agent := range agents {
		if agent.Phone == nil || *agent.Phone == "" {
			continue
		}
		payload := map[string]string{
			"to":      *agent.Phone,
			"message": msg.Text,
		}
		if err := d.postJSON(ctx, d.cfg.SMSGatewayURL, payload); err != nil {
			slog.ErrorContext(ctx, "sms delivery failed",
				"error", err,
				"agent_id", agent.ID,
				"conversation_id", msg.ConversationID)
		}
	}
}

func (d *Deliverer) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
