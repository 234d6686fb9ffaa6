package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type Provider interface {
	Send(ctx context.Context, message Message) error
}

type Message struct {
	From      string `json:"from"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type ProviderConfig struct {
	Kind         string
	WebhookURL   string
	WebhookToken string
}

func NewProvider(cfg ProviderConfig) Provider {
	switch cfg.Kind {
	case "", "stub", "log":
		return logProvider{}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			log.Printf("webhook provider without NOTIF_WEBHOOK_URL; falling back to log")
			return logProvider{}
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookProvider{url: cfg.Kind, client: &http.Client{Timeout: 5 * time.Second}}
		}
		return logProvider{}
	}
}

type logProvider struct{}

func (logProvider) Send(ctx context.Context, message Message) error {
	log.Printf("send email to=%s subject=%q body=%q", message.Recipient, message.Subject, message.Body)
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message Message) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message Message) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func (p webhookProvider) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(struct {
		Channel string `json:"channel"`
		Message
	}{Channel: "email", Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}
	return nil
}
