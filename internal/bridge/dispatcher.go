package bridge

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/daiello/wabridge/internal/backend"
	"github.com/daiello/wabridge/internal/gateway"
)

// Dispatcher pushes collected bot replies back to the sender over the
// gateway, preserving activity order and pacing consecutive sends so
// WhatsApp renders them in sequence. On voice turns each textual reply is
// also synthesized and delivered as an audio message.
type Dispatcher struct {
	log    *slog.Logger
	media  MediaGateway
	speech SpeechBridge

	// mediaHome is the public base URL under which synthesized audio
	// artifacts are served back to the gateway.
	mediaHome string

	pause func(ctx context.Context, d time.Duration)
}

const (
	pauseAfterText  = 1 * time.Second
	pauseAfterMedia = 2 * time.Second
)

func NewDispatcher(log *slog.Logger, media MediaGateway, sp SpeechBridge, mediaHome string) *Dispatcher {
	return &Dispatcher{
		log:       log.With(slog.String("service", "dispatcher")),
		media:     media,
		speech:    sp,
		mediaHome: strings.TrimRight(mediaHome, "/"),
		pause:     sleepContext,
	}
}

// Notice delivers a single service message to the sender. In test mode the
// text is returned instead of sent so the caller can surface it in the
// response body.
func (d *Dispatcher) Notice(ctx context.Context, msg Message, text string, testMode bool) string {
	if testMode {
		return text
	}
	d.media.SendText(ctx, msg.From, text)
	return text
}

// Dispatch delivers the reply activities in order. Within an activity the
// text goes out first and media attachments after it, so a caption precedes
// its photo. The returned string is the accumulated reply text, which is the
// response body in test mode.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, activities []backend.Activity, testMode bool) string {
	var bodies []string
	for i, act := range activities {
		mediaSent := false
		text := renderText(act)

		// Voice synthesis speaks only the bare reply and card bodies,
		// never the rendered layout with its fenced labels and URLs.
		voiceTexts := make([]string, 0, 2)
		if act.Text != "" {
			voiceTexts = append(voiceTexts, act.Text)
		}

		var media []backend.Attachment
		for _, att := range act.Attachments {
			if card, ok := DecodeCard(att); ok {
				rendered := RenderCard(card)
				if text != "" {
					text += "\n" + rendered
				} else {
					text = rendered
				}
				if card.Text != "" {
					voiceTexts = append(voiceTexts, card.Text)
				}
				continue
			}
			media = append(media, att)
		}

		if text != "" {
			if testMode {
				bodies = append(bodies, text)
			} else {
				if msg.VoiceTurn && d.sendVoice(ctx, msg.From, act.ID, voiceTexts) {
					mediaSent = true
				}
				d.media.SendText(ctx, msg.From, text)
			}
		}

		if !testMode {
			for _, att := range media {
				d.sendAttachment(ctx, msg.From, att)
				mediaSent = true
			}
		}

		if !testMode && i < len(activities)-1 {
			if mediaSent {
				d.pause(ctx, pauseAfterMedia)
			} else {
				d.pause(ctx, pauseAfterText)
			}
		}
	}
	return strings.Join(bodies, "\n")
}

// renderText flattens an activity's text plus its suggested actions into the
// WhatsApp quick-reply layout.
func renderText(act backend.Activity) string {
	text := act.Text
	if act.SuggestedActions == nil {
		return text
	}
	for _, action := range act.SuggestedActions.Actions {
		text += "\n     ```" + action.Title + "```"
	}
	return text
}

func (d *Dispatcher) sendAttachment(ctx context.Context, to string, att backend.Attachment) {
	media := gateway.MediaFile
	switch {
	case strings.HasPrefix(att.ContentType, "image/"):
		media = gateway.MediaImage
	case strings.HasPrefix(att.ContentType, "audio/"):
		media = gateway.MediaAudio
	case strings.HasPrefix(att.ContentType, "video/"):
		media = gateway.MediaVideo
	}
	d.media.SendMedia(ctx, to, media, att.Name, att.ContentURL, att.ThumbnailURL)
}

// sendVoice synthesizes each voice text and sends the resulting audio. The
// activity id doubles as the artifact name after dropping the "|" separator
// the backend puts in activity ids; characters outside Latin-1 are stripped
// before synthesis since the voice cannot pronounce them.
func (d *Dispatcher) sendVoice(ctx context.Context, to, activityID string, texts []string) bool {
	id := strings.ReplaceAll(activityID, "|", "")
	sent := false
	for i, text := range texts {
		artifactID := id
		if i > 0 {
			artifactID = id + "-" + strconv.Itoa(i)
		}
		artifact, ok := d.speech.Synthesize(ctx, stripWide(text), artifactID)
		if !ok {
			continue
		}
		url := d.mediaHome + "/media/" + artifact.Name
		d.media.SendMedia(ctx, to, gateway.MediaAudio, artifact.Name, url, "")
		sent = true
	}
	return sent
}

func stripWide(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r <= 0xFF {
			b.WriteRune(r)
		}
	}
	return b.String()
}
