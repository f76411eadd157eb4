// Package email sends transactional mail through a SendGrid-compatible
// mail API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config configures the mail API client.
type Config struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

// Address is a mailbox.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is a plain-text message.
type Message struct {
	From    Address
	To      []Address
	Subject string
	Text    string
}

// Client sends messages.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
}

// New creates a client. The API key is required.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing mail API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "email"),
		backoff:    time.Second,
	}, nil
}

type personalization struct {
	To []Address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             Address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// HTTPError is a non-2xx answer of the mail API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("mail api http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Send delivers msg, retrying rate limits and server errors with
// exponential backoff.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.From.Email) == "" {
		msg.From = Address{Email: c.cfg.FromEmail, Name: c.cfg.FromName}
	}
	if msg.From.Email == "" {
		return errors.New("email: sender required")
	}
	if len(msg.To) == 0 {
		return errors.New("email: recipient required")
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Text) == "" {
		return errors.New("email: subject and text required")
	}

	wire := sendRequest{
		Personalizations: []personalization{{To: msg.To}},
		From:             msg.From,
		Subject:          strings.TrimSpace(msg.Subject),
		Content:          []content{{Type: "text/plain", Value: msg.Text}},
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.sendOnce(ctx, body)
		if err == nil {
			return nil
		}
		var he *HTTPError
		if !errors.As(err, &he) || !he.retryable() || attempt >= c.cfg.MaxRetries {
			return err
		}

		c.logger.Warn("mail send retrying", "attempt", attempt+1, "sleep", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Client) sendOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

// SendWelcome sends the plain welcome message to a new member.
func (c *Client) SendWelcome(ctx context.Context, to Address) error {
	greeting := "Hallo"
	if to.Name != "" {
		greeting += " " + to.Name
	}
	text := greeting + ",\n\n" +
		"willkommen bei Mom Tribe! Dein Konto ist eingerichtet. " +
		"Öffne die App, um Mamas in deiner Nähe zu finden.\n\n" +
		"Dein Mom Tribe Team"

	return c.Send(ctx, Message{
		To:      []Address{to},
		Subject: "Willkommen bei Mom Tribe",
		Text:    text,
	})
}

// String hides the API key in logs.
func (c Config) String() string {
	return "email.Config{BaseURL:" + c.BaseURL + " FromEmail:" + c.FromEmail +
		" MaxRetries:" + strconv.Itoa(c.MaxRetries) + "}"
}
