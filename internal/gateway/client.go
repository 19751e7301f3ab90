// Package gateway implements the WhatsApp provider's HTTP API: form-encoded
// send calls for text and media, and media fetches for inbound voice/audio.
// Every call follows the swallow-and-signal policy: transport failures are
// logged and reported as empty results, never as errors, so a broken send can
// not abort a webhook turn.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MediaType enumerates the media kinds accepted by the provider's send API.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaFile  MediaType = "file"
	MediaVideo MediaType = "video"
)

const (
	defaultSendRate  = 10
	defaultSendBurst = 5
	requestTimeout   = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// APIKey authenticates every call via the Apikey header.
	APIKey string
	// Source is the WhatsApp business number messages are sent from.
	Source string
	// APIURL is the message-send endpoint.
	APIURL string
	// MediaURL is the root for fetching inbound voice media by id.
	MediaURL string
	// SendRate caps outbound API calls per second. Zero means the default.
	SendRate float64
	// SendBurst is the limiter burst size. Zero means the default.
	SendBurst int
}

// Client calls the provider API. Safe for concurrent use.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	source     string
	apiURL     string
	mediaURL   string
}

// NewClient creates a gateway client from the given options.
func NewClient(log *slog.Logger, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	sendRate := opts.SendRate
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	burst := opts.SendBurst
	if burst <= 0 {
		burst = defaultSendBurst
	}
	return &Client{
		logger:     log.With(slog.String("service", "gateway")),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(sendRate), burst),
		apiKey:     opts.APIKey,
		source:     opts.Source,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		mediaURL:   strings.TrimRight(opts.MediaURL, "/") + "/",
	}
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

type mediaPayload struct {
	Type        string `json:"type"`
	Filename    string `json:"filename,omitempty"`
	URL         string `json:"url,omitempty"`
	OriginalURL string `json:"originalUrl,omitempty"`
	PreviewURL  string `json:"previewUrl,omitempty"`
}

// SendText delivers a plain text message and returns the provider message id,
// or empty string on failure.
func (c *Client) SendText(ctx context.Context, destination, text string) string {
	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", c.source)
	form.Set("destination", destination)
	form.Set("message", text)
	return c.postForm(ctx, form)
}

// SendMedia delivers a media message by public URL and returns the provider
// message id, or empty string on failure. Images carry original plus preview
// URLs; audio omits the filename, per the provider's payload schema.
func (c *Client) SendMedia(ctx context.Context, destination string, media MediaType, filename, contentURL, thumbnailURL string) string {
	if strings.TrimSpace(contentURL) == "" {
		c.logger.Error("send media: content url is required", slog.String("destination", destination))
		return ""
	}
	payload := mediaPayload{Type: string(media)}
	if media != MediaAudio {
		payload.Filename = filename
	}
	if media == MediaImage {
		payload.OriginalURL = contentURL
		payload.PreviewURL = contentURL
		if strings.TrimSpace(thumbnailURL) != "" {
			payload.PreviewURL = thumbnailURL
		}
	} else {
		payload.URL = contentURL
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("send media: encode payload", slog.Any("error", err))
		return ""
	}

	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", c.source)
	form.Set("destination", destination)
	form.Set("message.payload", string(encoded))
	return c.postForm(ctx, form)
}

// GetVoice fetches an inbound voice recording by app name and voice id.
// On failure it returns an empty reader so callers can proceed to the
// recognition fallback without special-casing transport errors.
func (c *Client) GetVoice(ctx context.Context, appName, voiceID string) io.ReadCloser {
	return c.get(ctx, c.mediaURL+url.PathEscape(appName)+"/"+url.PathEscape(voiceID))
}

// GetAudio fetches an inbound audio file by its direct URL.
func (c *Client) GetAudio(ctx context.Context, rawURL string) io.ReadCloser {
	return c.get(ctx, rawURL)
}

func (c *Client) postForm(ctx context.Context, form url.Values) string {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error("send: rate limiter", slog.Any("error", err))
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Error("send: build request", slog.Any("error", err))
		return ""
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("send: request failed", slog.Any("error", err))
		return ""
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Error("send: unexpected status", slog.Int("status", resp.StatusCode))
		return ""
	}
	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Error("send: decode response", slog.Any("error", err))
		return ""
	}
	return result.MessageID
}

func (c *Client) get(ctx context.Context, endpoint string) io.ReadCloser {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Error("get media: build request", slog.Any("error", err))
		return emptyBody()
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("get media: request failed", slog.Any("error", err))
		return emptyBody()
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.logger.Error("get media: unexpected status", slog.Int("status", resp.StatusCode))
		return emptyBody()
	}
	return resp.Body
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "GsApi/1.0")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Apikey", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
}

func emptyBody() io.ReadCloser {
	return io.NopCloser(strings.NewReader(""))
}
