// Package backend implements the session-oriented HTTP protocol spoken by the
// conversational engine: start a conversation, post activities into it, and
// read reply activities back from a watermark cursor.
package backend

import "encoding/json"

// Activity types used on the wire.
const (
	ActivityMessage = "message"
	ActivityEvent   = "event"
)

// ChannelAccount identifies a participant in a conversation.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CardAction is a button or suggested action attached to an activity.
type CardAction struct {
	Type  string `json:"type,omitempty"`
	Title string `json:"title"`
	Value string `json:"value,omitempty"`
}

// SuggestedActions carries the quick-reply buttons of an activity.
type SuggestedActions struct {
	Actions []CardAction `json:"actions"`
}

// Attachment is a piece of media carried by an activity. ContentURL is either
// a plain HTTPS URL or a base64 data URL for inline payloads. Content holds
// the structured body of card attachments.
type Attachment struct {
	Name         string          `json:"name,omitempty"`
	ContentType  string          `json:"contentType"`
	ContentURL   string          `json:"contentUrl,omitempty"`
	ThumbnailURL string          `json:"thumbnailUrl,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
}

// Activity is one conversational turn unit exchanged with the backend.
type Activity struct {
	Type             string            `json:"type"`
	ID               string            `json:"id,omitempty"`
	Timestamp        string            `json:"timestamp,omitempty"`
	ChannelID        string            `json:"channelId,omitempty"`
	From             ChannelAccount    `json:"from"`
	Text             string            `json:"text,omitempty"`
	Attachments      []Attachment      `json:"attachments,omitempty"`
	SuggestedActions *SuggestedActions `json:"suggestedActions,omitempty"`
}

// ActivitySet is a page of reply activities plus the new read cursor.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark"`
}

// Conversation is the handle returned when a conversation is started. The
// backend owns the id; the bridge only stores and echoes it.
type Conversation struct {
	ID        string `json:"conversationId"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// Card is the structured rich-card body carried inside a card attachment.
// WhatsApp has no native card primitive, so it is always rendered to text
// before delivery.
type Card struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Images   []CardImage  `json:"images,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}

// CardImage is an image reference inside a Card.
type CardImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}
