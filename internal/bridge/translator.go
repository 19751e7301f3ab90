package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/daiello/wabridge/internal/speech"
)

// Translator normalizes gateway webhook payloads into Messages, pulling the
// recording and running recognition for voice turns.
type Translator struct {
	log     *slog.Logger
	media   MediaGateway
	speech  SpeechBridge
	appName string
}

func NewTranslator(log *slog.Logger, media MediaGateway, sp SpeechBridge, appName string) *Translator {
	return &Translator{
		log:     log.With(slog.String("service", "translator")),
		media:   media,
		speech:  sp,
		appName: appName,
	}
}

// Translate maps one inbound payload to a normalized Message. It never
// fails: payloads of a kind the bridge cannot carry come back as
// TypeUnsupported and the relay answers with the capability notice.
func (t *Translator) Translate(ctx context.Context, p InboundPayload) Message {
	msg := Message{
		From:          p.From,
		CorrelationID: p.ID,
		Timestamp:     p.Timestamp,
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}

	switch p.Type {
	case "text":
		msg.Type = TypeText
		msg.Text = p.Text
	case "image":
		msg.Type = TypeImage
		msg.MediaURL = p.URL
	case "audio":
		msg.Type = TypeAudio
		msg.MediaURL = p.URL
		msg.Inline = t.fetch(t.media.GetAudio(ctx, p.URL))
	case "event", "message-event":
		msg.Type = TypeEvent
		msg.Text = p.Text
	case "voice":
		msg.Type = TypeVoice
		msg.MediaRef = p.Voice.ID
		msg.Inline = t.fetch(t.media.GetVoice(ctx, t.appName, p.Voice.ID))
		t.recognize(ctx, &msg)
	default:
		msg.Type = TypeUnsupported
	}
	return msg
}

// recognize turns a voice recording into a text turn. When recognition finds
// nothing or the speech service fails, the message keeps its inline audio and
// the relay forwards the recording itself.
func (t *Translator) recognize(ctx context.Context, msg *Message) {
	if len(msg.Inline) == 0 {
		return
	}
	text := t.speech.Recognize(ctx, bytes.NewReader(msg.Inline), msg.CorrelationID)
	if text == "" || text == speech.NoMatch || strings.HasPrefix(text, speech.CanceledPrefix) {
		t.log.Warn("voice recognition fell through",
			slog.String("id", msg.CorrelationID),
			slog.String("result", text))
		return
	}
	msg.Type = TypeText
	msg.Text = text
	msg.VoiceTurn = true
}

func (t *Translator) fetch(rc io.ReadCloser) []byte {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.log.Warn("media download truncated", slog.String("error", err.Error()))
		return nil
	}
	return data
}
