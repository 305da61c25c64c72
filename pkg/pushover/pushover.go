// Package pushover is a minimal client for the Pushover message API.
package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultURL is the Pushover message endpoint.
const DefaultURL = "https://api.pushover.net/1/messages.json"

// Message is one push notification addressed to a user key.
type Message struct {
	UserKey  string
	Title    string
	Body     string
	Device   string
	Sound    string
	Priority int
}

// Config configures the client. Token is the application token; it is
// server configuration and never appears in per-user data.
type Config struct {
	Token   string
	BaseURL string        // default DefaultURL
	Timeout time.Duration // default 10s
}

// Client posts messages for a single application token.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// New creates a client with defaults applied.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Send posts one message. Non-2xx responses become errors carrying a
// snippet of the response body.
func (c *Client) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("token", c.token)
	form.Set("user", msg.UserKey)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	if msg.Device != "" {
		form.Set("device", msg.Device)
	}
	if msg.Sound != "" {
		form.Set("sound", msg.Sound)
	}
	if msg.Priority != 0 {
		form.Set("priority", strconv.Itoa(msg.Priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pushover: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
