package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTimeout marks a backend call that exceeded the configured latency budget.
// The relay treats it differently from other failures (interim notice plus a
// single optimistic retry instead of giving up).
var ErrTimeout = errors.New("backend: request timed out")

const defaultTimeout = 15 * time.Second

// Client talks the backend session protocol over HTTP with bearer-secret auth.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	secret     string
}

// NewClient creates a backend client. baseURL is the conversations endpoint
// root; timeout bounds every request and is what trips ErrTimeout.
func NewClient(log *slog.Logger, baseURL, secret string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:     log.With(slog.String("service", "backend")),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
	}
}

// StartConversation opens a new conversation and returns its handle.
func (c *Client) StartConversation(ctx context.Context) (Conversation, error) {
	var conversation Conversation
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/conversations", nil, &conversation); err != nil {
		return Conversation{}, fmt.Errorf("start conversation: %w", err)
	}
	if strings.TrimSpace(conversation.ID) == "" {
		return Conversation{}, fmt.Errorf("start conversation: empty conversation id")
	}
	return conversation, nil
}

// PostActivity submits one activity into an existing conversation.
func (c *Client) PostActivity(ctx context.Context, conversationID string, activity Activity) error {
	endpoint := c.baseURL + "/conversations/" + url.PathEscape(conversationID) + "/activities"
	if err := c.do(ctx, http.MethodPost, endpoint, activity, nil); err != nil {
		return fmt.Errorf("post activity: %w", err)
	}
	return nil
}

// GetActivities reads reply activities after the given watermark. An empty
// watermark reads from the beginning of the conversation.
func (c *Client) GetActivities(ctx context.Context, conversationID, watermark string) (ActivitySet, error) {
	endpoint := c.baseURL + "/conversations/" + url.PathEscape(conversationID) + "/activities"
	if strings.TrimSpace(watermark) != "" {
		endpoint += "?watermark=" + url.QueryEscape(watermark)
	}
	var set ActivitySet
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &set); err != nil {
		return ActivitySet{}, fmt.Errorf("get activities: %w", err)
	}
	return set, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
