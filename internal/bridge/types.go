// Package bridge holds the conversation-session relay between the WhatsApp
// gateway webhook and the conversational backend: per-sender session
// continuity, inbound payload translation, reply dispatching with pacing, and
// the voice recognition/synthesis layering for voice turns.
package bridge

import (
	"context"
	"io"
	"time"

	"github.com/daiello/wabridge/internal/backend"
	"github.com/daiello/wabridge/internal/gateway"
	"github.com/daiello/wabridge/internal/speech"
)

// MessageType classifies a normalized inbound message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeVoice       MessageType = "voice"
	TypeAudio       MessageType = "audio"
	TypeEvent       MessageType = "event"
	TypeUnsupported MessageType = "unsupported"
)

// Message is the normalized inbound unit consumed by the relay. It is built
// once by the Translator and never mutated afterwards.
type Message struct {
	From          string
	Recipient     string
	CorrelationID string
	Type          MessageType
	Text          string
	MediaURL      string
	MediaRef      string
	Inline        []byte
	Timestamp     string
	// VoiceTurn marks a message whose text came from speech recognition;
	// replies to it must also be delivered as synthesized voice.
	VoiceTurn bool
}

// Session is the conversation continuity record for one sender. At most one
// live Session exists per sender id; the store mutates it in place and hands
// out copies.
type Session struct {
	SenderID       string
	ConversationID string
	Watermark      string
	LastActivity   time.Time
}

// InboundPayload is the JSON message object posted by the gateway webhook.
type InboundPayload struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	URL       string       `json:"url"`
	Voice     VoicePayload `json:"voice"`
}

// VoicePayload references an inbound voice recording held by the gateway.
type VoicePayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
}

// TurnResult is the outcome of one webhook turn. Body carries the assembled
// reply text in test mode, or a forced error message; in gateway mode the
// replies were already pushed and Body is usually empty.
type TurnResult struct {
	CorrelationID string
	Body          string
}

// Conversations is the backend session protocol used by the store and relay.
type Conversations interface {
	StartConversation(ctx context.Context) (backend.Conversation, error)
	PostActivity(ctx context.Context, conversationID string, activity backend.Activity) error
	GetActivities(ctx context.Context, conversationID, watermark string) (backend.ActivitySet, error)
}

// MediaGateway is the outbound WhatsApp transport. Send calls follow the
// swallow-and-signal policy: empty message id means failure.
type MediaGateway interface {
	SendText(ctx context.Context, destination, text string) string
	SendMedia(ctx context.Context, destination string, media gateway.MediaType, filename, contentURL, thumbnailURL string) string
	GetVoice(ctx context.Context, appName, voiceID string) io.ReadCloser
	GetAudio(ctx context.Context, rawURL string) io.ReadCloser
}

// SpeechBridge is the voice capability layered onto voice turns.
type SpeechBridge interface {
	Recognize(ctx context.Context, audio io.Reader, id string) string
	Synthesize(ctx context.Context, text, id string) (speech.Artifact, bool)
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
