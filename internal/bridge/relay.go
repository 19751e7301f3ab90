package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/daiello/wabridge/internal/backend"
)

// User-facing notices, sent to WhatsApp verbatim.
const (
	msgUnsupported = "Desculpe, por enquanto só consigo lidar com texto, imagem ou voz."
	msgConnError   = "Ocorreu um ERRO ao estabelecer a conexão com o Bot"
	msgInterim1    = "Oi! Por favor, aguarde um instante ... estou inicializando a minha conexão ..."
	msgInterim2    = "Só mais um pouquinho ..."
	msgConnFailure = "Desculpe, ocorreu uma falha na minha conexão. Tente novamente mais tarde."
	msgMaintenance = "Desculpe, estou em manutenção. Por favor, tente mais tarde."
)

// Relay drives one webhook turn end to end: session lookup, activity post,
// reply polling with the slow-backend grace protocol, and dispatch of the
// collected replies.
type Relay struct {
	log      *slog.Logger
	sessions *SessionStore
	conv     Conversations
	dispatch *Dispatcher
	botID    string

	grace time.Duration
	pause func(ctx context.Context, d time.Duration)
}

func NewRelay(log *slog.Logger, sessions *SessionStore, conv Conversations, dispatch *Dispatcher, botID string) *Relay {
	return &Relay{
		log:      log.With(slog.String("service", "relay")),
		sessions: sessions,
		conv:     conv,
		dispatch: dispatch,
		botID:    botID,
		grace:    5 * time.Second,
		pause:    sleepContext,
	}
}

// Run executes one turn for the normalized message and returns the turn
// outcome. In test mode nothing is pushed to the gateway; the assembled reply
// text comes back in the result body instead.
func (r *Relay) Run(ctx context.Context, msg Message, testMode bool) TurnResult {
	res := TurnResult{CorrelationID: msg.CorrelationID}

	if msg.Type == TypeUnsupported {
		// Short circuit: nothing is sent anywhere, the apology travels
		// back as the webhook response body.
		res.Body = msgUnsupported
		return res
	}

	sess, err := r.sessions.GetOrCreate(ctx, msg.From)
	if err != nil {
		r.log.Error("conversation start failed",
			slog.String("sender", msg.From),
			slog.String("error", err.Error()))
		res.Body = r.dispatch.Notice(ctx, msg, msgConnError, testMode)
		return res
	}

	activity := r.buildActivity(msg)
	outcome := r.post(ctx, sess.ConversationID, activity, msg, testMode)

	if msg.Type == TypeEvent {
		return res
	}

	set, ok := r.fetch(ctx, sess.ConversationID, sess.Watermark, msg, testMode, outcome == postTimedOut)
	if !ok {
		res.Body = r.dispatch.Notice(ctx, msg, msgMaintenance, testMode)
		return res
	}

	// A non-empty cursor is progress worth keeping even when the poll
	// carried no usable reply.
	if set.Watermark != "" {
		r.sessions.Update(msg.From, set.Watermark)
	}

	if len(set.Activities) > 0 && set.Watermark != "" {
		res.Body = r.dispatch.Dispatch(ctx, msg, set.Activities, testMode)
		return res
	}

	r.log.Warn("no reply obtained",
		slog.String("sender", msg.From),
		slog.String("conversation", sess.ConversationID))
	switch {
	case outcome == postFailed:
		res.Body = r.dispatch.Notice(ctx, msg, msgMaintenance, testMode)
	case outcome == postTimedOut || set.Watermark == "":
		res.Body = r.dispatch.Notice(ctx, msg, msgConnFailure, testMode)
	default:
		// Clean post, cursor advanced, nothing addressed to the user:
		// answer silently and let the next turn resume from the cursor.
	}
	return res
}

type postOutcome int

const (
	postOK postOutcome = iota
	postTimedOut
	postFailed
)

// post submits the user activity once. On timeout the user gets the interim
// notice and the turn continues optimistically after the grace period: the
// backend may still process the activity it already received. Other failures
// continue too (a reply may already exist) but mark the turn so an empty poll
// ends with the maintenance notice instead of the connection-failure one.
func (r *Relay) post(ctx context.Context, conversationID string, activity backend.Activity, msg Message, testMode bool) postOutcome {
	err := r.conv.PostActivity(ctx, conversationID, activity)
	if err == nil {
		return postOK
	}
	if errors.Is(err, backend.ErrTimeout) {
		r.log.Warn("activity post timed out", slog.String("conversation", conversationID))
		r.dispatch.Notice(ctx, msg, msgInterim1, testMode)
		r.pause(ctx, r.grace)
		return postTimedOut
	}
	r.log.Error("activity post failed",
		slog.String("conversation", conversationID),
		slog.String("error", err.Error()))
	return postFailed
}

// fetch polls for bot replies, filtering out echoes of the user's own
// activities and empty placeholders. When the post timed out, an empty first
// poll tells the user to hang on a bit longer and retries exactly once after
// the grace period; there is never a third attempt.
func (r *Relay) fetch(ctx context.Context, conversationID, watermark string, msg Message, testMode, retryEmpty bool) (backend.ActivitySet, bool) {
	var set backend.ActivitySet
	for {
		raw, err := r.conv.GetActivities(ctx, conversationID, watermark)
		if err != nil {
			r.log.Error("reply fetch failed",
				slog.String("conversation", conversationID),
				slog.String("error", err.Error()))
			return backend.ActivitySet{}, false
		}
		set = backend.ActivitySet{Watermark: raw.Watermark}
		for _, act := range raw.Activities {
			if act.From.ID != r.botID {
				continue
			}
			if act.Text == "" && len(act.Attachments) == 0 {
				continue
			}
			set.Activities = append(set.Activities, act)
		}
		if len(set.Activities) > 0 || !retryEmpty {
			return set, true
		}
		retryEmpty = false
		r.dispatch.Notice(ctx, msg, msgInterim2, testMode)
		r.pause(ctx, r.grace)
	}
}

// buildActivity maps the normalized message onto the backend activity shape.
// The gateway timestamp doubles as the activity id, falling back to the
// correlation id for turns without one (GET test mode).
func (r *Relay) buildActivity(msg Message) backend.Activity {
	id := msg.Timestamp
	if id == "" {
		id = msg.CorrelationID
	}
	activity := backend.Activity{
		Type:      backend.ActivityMessage,
		ID:        id,
		Timestamp: time.Now().Format("15:04:05"),
		ChannelID: "whatsapp",
		From:      backend.ChannelAccount{ID: msg.From, Name: msg.From},
		Text:      msg.Text,
	}
	switch msg.Type {
	case TypeEvent:
		activity.Type = backend.ActivityEvent
	case TypeImage:
		activity.Attachments = []backend.Attachment{URLAttachment(msg.MediaURL, "image/png")}
	case TypeVoice, TypeAudio:
		if len(msg.Inline) > 0 {
			activity.Attachments = []backend.Attachment{
				InlineAttachment(msg.CorrelationID, "audio/ogg", msg.Inline),
			}
		}
	}
	return activity
}
