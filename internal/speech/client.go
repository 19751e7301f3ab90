// Package speech bridges the bridge's voice turns to a Whisper-compatible
// speech API: recognition of inbound OGG voice notes and synthesis of outbound
// MP3 replies. Recognition failures are reported through sentinel strings
// rather than errors so the translator can fall back to inline-audio delivery.
package speech

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NoMatch is returned when the recognizer produced no text.
const NoMatch = "NOMATCH"

// CanceledPrefix starts every recognition result that failed at the API level.
const CanceledPrefix = "CANCELED"

// Artifact is a synthesized audio file available under the media directory.
type Artifact struct {
	Name string
	Path string
}

// Options configures a Client.
type Options struct {
	// APIKey authenticates against the speech API. Empty disables the client:
	// Recognize returns NoMatch and Synthesize reports failure, which degrades
	// voice turns to inline-audio forwarding without any API calls.
	APIKey string
	// BaseURL overrides the API endpoint (testing, compatible providers).
	BaseURL string
	// Language hints the recognizer, e.g. "pt".
	Language string
	// Voice selects the synthesis voice. Empty picks the default.
	Voice string
	// MediaDir is where synthesized MP3 artifacts are written.
	MediaDir string
}

// Client implements the speech capability.
type Client struct {
	logger   *slog.Logger
	api      *openai.Client
	language string
	voice    openai.SpeechVoice
	mediaDir string
}

// NewClient creates a speech client. A nil api (empty key) yields a disabled
// client that only reports the degraded sentinels.
func NewClient(log *slog.Logger, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	var api *openai.Client
	if strings.TrimSpace(opts.APIKey) != "" {
		cfg := openai.DefaultConfig(opts.APIKey)
		if strings.TrimSpace(opts.BaseURL) != "" {
			cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		api = openai.NewClientWithConfig(cfg)
	}
	voice := openai.VoiceAlloy
	if strings.TrimSpace(opts.Voice) != "" {
		voice = openai.SpeechVoice(opts.Voice)
	}
	return &Client{
		logger:   log.With(slog.String("service", "speech")),
		api:      api,
		language: opts.Language,
		voice:    voice,
		mediaDir: opts.MediaDir,
	}
}

// Recognize transcribes an OGG audio stream. It returns the recognized text,
// NoMatch when nothing was recognized, or "CANCELED: <detail>" when the API
// call failed. Recognized digit phrases are normalized so spoken menu options
// match the card button prefixes.
func (c *Client) Recognize(ctx context.Context, audio io.Reader, id string) string {
	if c.api == nil {
		return NoMatch
	}
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: "Audio_" + id + ".ogg",
		Language: c.language,
	})
	if err != nil {
		c.logger.Error("recognize failed", slog.String("id", id), slog.Any("error", err))
		return CanceledPrefix + ": " + err.Error()
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return NoMatch
	}
	return writtenNumberToDigit(text)
}

// Synthesize converts text to an MP3 artifact under the media directory.
// It reports false on any failure; the caller skips voice delivery silently.
func (c *Client) Synthesize(ctx context.Context, text, id string) (Artifact, bool) {
	if c.api == nil || strings.TrimSpace(text) == "" {
		return Artifact{}, false
	}
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		c.logger.Error("synthesize failed", slog.String("id", id), slog.Any("error", err))
		return Artifact{}, false
	}
	defer func() {
		_ = resp.Close()
	}()

	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		c.logger.Error("synthesize: create media dir", slog.Any("error", err))
		return Artifact{}, false
	}
	name := "Audio_" + id + ".mp3"
	path := filepath.Join(c.mediaDir, name)
	file, err := os.Create(path)
	if err != nil {
		c.logger.Error("synthesize: create artifact", slog.Any("error", err))
		return Artifact{}, false
	}
	defer func() {
		_ = file.Close()
	}()
	if _, err := io.Copy(file, resp); err != nil {
		c.logger.Error("synthesize: write artifact", slog.Any("error", err))
		return Artifact{}, false
	}
	return Artifact{Name: name, Path: path}, true
}

// writtenNumberToDigit maps short spelled-out numbers and punctuated digit
// strings to bare digits, so "Um." becomes "1" and "12." becomes "12".
func writtenNumberToDigit(text string) string {
	if text == "Um." {
		return "1"
	}
	stripped := strings.ReplaceAll(text, ".", "")
	if stripped != "" && isAllDigits(stripped) {
		return stripped
	}
	return text
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
