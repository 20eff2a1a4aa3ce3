// Package notify delivers account emails (invitations and password resets).
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

type Kind string

const (
	KindInvitation    Kind = "invitation"
	KindPasswordReset Kind = "password_reset"
)

type Message struct {
	Kind      Kind
	Recipient string
	Link      string
	ExpiresAt time.Time
}

func (m Message) Subject() string {
	if m.Kind == KindInvitation {
		return "You have been invited to Payments 180"
	}
	return "Reset your Payments 180 password"
}

func (m Message) Body() string {
	return fmt.Sprintf("%s\n\nOpen %s before %s.", m.Subject(), m.Link, m.ExpiresAt.UTC().Format(time.RFC1123))
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Provider     string
	WebhookURL   string
	WebhookToken string
}

// New picks a provider by name. Unknown names and a webhook without a URL
// fall back to logging.
func New(cfg Config) Notifier {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "noop":
		return noopNotifier{}
	case "webhook":
		if cfg.WebhookURL == "" {
			return logNotifier{}
		}
		return webhookNotifier{url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}
	default:
		return logNotifier{}
	}
}

type logNotifier struct{}

func (logNotifier) Send(_ context.Context, msg Message) error {
	log.Printf("notify kind=%s recipient=%s link=%s", msg.Kind, msg.Recipient, msg.Link)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, Message) error {
	return nil
}

type webhookNotifier struct {
	url    string
	token  string
	client *http.Client
}

func (n webhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"kind":      string(msg.Kind),
		"recipient": msg.Recipient,
		"subject":   msg.Subject(),
		"body":      msg.Body(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("notification provider rejected request")
	}
	return nil
}
