package bridge

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/daiello/wabridge/internal/backend"
)

// CardContentType marks structured card attachments in bot replies.
const CardContentType = "application/vnd.card"

// URLAttachment builds an activity attachment referencing remote media.
func URLAttachment(url, contentType string) backend.Attachment {
	return backend.Attachment{
		ContentType: contentType,
		ContentURL:  url,
	}
}

// InlineAttachment embeds raw media bytes as a base64 data URL, the form the
// backend accepts for user-uploaded recordings.
func InlineAttachment(name, contentType string, data []byte) backend.Attachment {
	return backend.Attachment{
		Name:        name,
		ContentType: contentType,
		ContentURL:  "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
}

// InlinePayload recovers the raw bytes of an inline attachment. The second
// return is false when the content URL is not a data URL or does not decode.
func InlinePayload(att backend.Attachment) ([]byte, bool) {
	idx := strings.Index(att.ContentURL, ";base64,")
	if !strings.HasPrefix(att.ContentURL, "data:") || idx < 0 {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentURL[idx+len(";base64,"):])
	if err != nil {
		return nil, false
	}
	return data, true
}

// DecodeCard parses the structured content of a card attachment.
func DecodeCard(att backend.Attachment) (backend.Card, bool) {
	if att.ContentType != CardContentType || len(att.Content) == 0 {
		return backend.Card{}, false
	}
	var card backend.Card
	if err := json.Unmarshal(att.Content, &card); err != nil {
		return backend.Card{}, false
	}
	return card, true
}

// RenderCard flattens a card into the WhatsApp text layout: bold title,
// subtitle and text lines, a blank separator, one line per button with a
// leading menu digit bolded, then image URLs.
func RenderCard(card backend.Card) string {
	var b strings.Builder
	if card.Title != "" {
		b.WriteString("*" + card.Title + "*\n")
	}
	if card.Subtitle != "" {
		b.WriteString(card.Subtitle + "\n")
	}
	if card.Text != "" {
		b.WriteString(card.Text + "\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	for _, btn := range card.Buttons {
		b.WriteString(boldFirstDigit(btn.Title) + "\n")
	}
	for _, img := range card.Images {
		b.WriteString(img.URL + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// boldFirstDigit wraps a leading menu digit 1-9 in bold markers so option
// lists read as "*1* Option A". Titles without a leading digit pass through.
func boldFirstDigit(title string) string {
	if title == "" {
		return title
	}
	if c := title[0]; c >= '1' && c <= '9' {
		return "*" + string(c) + "*" + title[1:]
	}
	return title
}
