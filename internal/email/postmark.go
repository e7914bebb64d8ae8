package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

// Client sends transactional mail through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
	attempts    uint64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
		attempts:    3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c != nil && c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendResetCode mails a password reset code.
func (c *Client) SendResetCode(ctx context.Context, toEmail, code, familyName string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	subject := "Your Family Points Bank reset code"
	if familyName != "" {
		subject = fmt.Sprintf("Reset your password for %s", familyName)
	}
	textBody := fmt.Sprintf("Your password reset code is %s.\n\nIt expires in 15 minutes. If you did not ask for it, ignore this email.", code)
	htmlBody := fmt.Sprintf(
		`<p>Your password reset code is:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>It expires in 15 minutes. If you did not ask for it, ignore this email.</p>`,
		code,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

// send posts the message, retrying when Postmark answers with a 5xx.
func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	b := retry.WithMaxRetries(c.attempts-1, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Postmark-Server-Token", c.serverToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("send email: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("postmark API error: status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
		}
		return nil
	})
}
