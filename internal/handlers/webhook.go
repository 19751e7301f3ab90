package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/daiello/wabridge/internal/bridge"
)

const (
	msgObjMissing    = "Msg Obj Missing"
	msgPostOnly      = "Callback deve ser chamado via POST"
	msgSystemFailure = "Desculpe, ocorreu uma falha no sistema."
)

type translator interface {
	Translate(ctx context.Context, payload bridge.InboundPayload) bridge.Message
}

type turnRunner interface {
	Run(ctx context.Context, msg bridge.Message, testMode bool) bridge.TurnResult
}

// WebhookHandler is the gateway-facing ingress. POST /callback receives the
// form-encoded message callbacks; GET /callback is the synchronous test mode
// that returns the assembled reply in the response body.
type WebhookHandler struct {
	logger     *slog.Logger
	translator translator
	relay      turnRunner
	testStatus int
}

func NewWebhookHandler(log *slog.Logger, tr translator, relay turnRunner, testStatus int) *WebhookHandler {
	if testStatus == 0 {
		testStatus = http.StatusOK
	}
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "webhook")),
		translator: tr,
		relay:      relay,
		testStatus: testStatus,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/callback", h.Post)
	e.GET("/callback", h.Get)
}

// Post handles a gateway callback. Turn-scoped failures never surface as a
// non-2xx status: the gateway would retry the callback and the user already
// got a notice, so everything resolves to 200 with a diagnostic body.
func (h *WebhookHandler) Post(c echo.Context) error {
	raw := c.FormValue("messageobj")
	if raw == "" {
		return c.String(http.StatusOK, msgObjMissing)
	}

	var payload bridge.InboundPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		h.logger.Error("malformed message object", slog.String("error", err.Error()))
		return c.String(http.StatusOK, msgSystemFailure)
	}

	ctx := c.Request().Context()
	msg := h.translator.Translate(ctx, payload)
	msg.Recipient = c.FormValue("botname")

	h.logger.Info("callback received",
		slog.String("id", msg.CorrelationID),
		slog.String("from", msg.From),
		slog.String("type", string(msg.Type)))

	res := h.relay.Run(ctx, msg, false)

	if msg.Type == bridge.TypeEvent {
		return c.String(http.StatusOK, "true")
	}
	return c.String(http.StatusOK, res.Body)
}

// Get runs a turn in test mode: the reply that would have gone out through
// the gateway comes back as the response body instead.
func (h *WebhookHandler) Get(c echo.Context) error {
	text := c.QueryParam("text")
	from := c.QueryParam("from")
	if text == "" || from == "" {
		return c.String(http.StatusOK, msgPostOnly)
	}

	id := c.QueryParam("id")
	if id == "" {
		id = uuid.NewString()
	}

	msg := bridge.Message{
		From:          from,
		CorrelationID: id,
		Type:          bridge.TypeText,
		Text:          text,
	}
	res := h.relay.Run(c.Request().Context(), msg, true)
	return c.String(h.testStatus, res.Body)
}
