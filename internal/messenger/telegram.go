// Package messenger delivers notifications through the Telegram Bot API
// and classifies delivery failures so the notifier can tell permanent
// failures (unsubscribe) from transient ones (skip).
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

const (
	defaultAPIURL    = "https://api.telegram.org"
	maxResponseBytes = 1 << 20
)

// Result classifies the outcome of one delivery attempt.
type Result int

const (
	// OK means the message was delivered.
	OK Result = iota
	// Blocked means the recipient blocked the bot. Permanent.
	Blocked
	// Deactivated means the recipient's account is gone. Permanent.
	Deactivated
	// ChatNotFound means the chat is currently unreachable. Transient.
	ChatNotFound
	// Failed covers every other failure. Transient.
	Failed
)

// Permanent reports whether the recipient should be unsubscribed.
func (r Result) Permanent() bool {
	return r == Blocked || r == Deactivated
}

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Blocked:
		return "blocked"
	case Deactivated:
		return "deactivated"
	case ChatNotFound:
		return "chat_not_found"
	default:
		return "failed"
	}
}

// APIError is a Bot API error response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s [%d]", e.Description, e.Code)
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// User is the bot's own identity.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Client is a thin HTTP wrapper around the Bot API, restricted to the
// methods the notifier needs.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Bot API client. An empty baseURL selects the
// public endpoint.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call sends a JSON POST to the given Bot API method and decodes the result.
func call[T any](ctx context.Context, c *Client, method string, payload any) (T, error) {
	var zero T

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return zero, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return zero, fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Strip the *url.Error layer: its message embeds the full
		// request URL, token included.
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return zero, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return zero, fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var api apiResponse[T]
	if err := json.Unmarshal(respBody, &api); err != nil {
		return zero, fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !api.OK {
		return zero, &APIError{Code: api.ErrorCode, Description: api.Description}
	}
	return api.Result, nil
}

// GetMe validates the bot token and returns the bot identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	u, err := call[User](ctx, c, "getMe", nil)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Send delivers a text message to the recipient and classifies the
// outcome. The returned error carries detail for logging; the Result is
// what callers branch on.
func (c *Client) Send(ctx context.Context, chatID int64, text string) (Result, error) {
	_, err := call[json.RawMessage](ctx, c, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return Classify(err), err
	}
	return OK, nil
}

// Classify maps a Bot API error onto a delivery Result.
func Classify(err error) Result {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return Failed
	}

	desc := strings.ToLower(apiErr.Description)
	switch {
	case apiErr.Code == http.StatusForbidden && strings.Contains(desc, "blocked"):
		return Blocked
	case apiErr.Code == http.StatusForbidden && strings.Contains(desc, "deactivated"):
		return Deactivated
	case apiErr.Code == http.StatusBadRequest && strings.Contains(desc, "chat not found"):
		return ChatNotFound
	default:
		return Failed
	}
}
