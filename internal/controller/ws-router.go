package controller

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/pkg/wsrouter"
	"github.com/pomodorotube/server/pkg/ytvideodata"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	r := wsrouter.New()
	r.Use(c.wsLoggingMw)
	r.OnError(c.handleWSError)

	r.Handle("ALIVE", wsrouter.Typed(c.handleAlive))
	r.Handle("SEARCH_INPUT", wsrouter.Typed(c.handleSearchInput))
	r.Handle("SELECT_VIDEO", wsrouter.Typed(c.handleSelectVideo))
	r.Handle("TIMER_START", wsrouter.Typed(c.handleTimerStart))
	r.Handle("TIMER_PAUSE", wsrouter.Typed(c.handleTimerPause))
	r.Handle("TIMER_TOGGLE", wsrouter.Typed(c.handleTimerToggle))
	r.Handle("TIMER_RESET", wsrouter.Typed(c.handleTimerReset))
	r.Handle("TIMER_SET_MODE", wsrouter.Typed(c.handleTimerSetMode))

	return r
}

type errorOutput struct {
	MessageType string `json:"message_type,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Errors      any    `json:"errors,omitempty"`
}

func (c *controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) {
	sess := c.getSessionFromCtx(ctx)
	if sess == nil {
		return
	}

	out := errorOutput{
		MessageType: wsrouter.GetMessageTypeFromCtx(ctx),
		Message:     err.Error(),
	}

	var vErr *validationError
	switch {
	case errors.As(err, &vErr):
		out.Code = "VALIDATION_ERROR"
		out.Message = ErrValidationError.Error()
		out.Errors = vErr.errors
	case errors.Is(err, wsrouter.ErrUnknownMessageType):
		out.Code = "UNKNOWN_MESSAGE_TYPE"
	case errors.Is(err, wsrouter.ErrInvalidPayload):
		out.Code = "INVALID_PAYLOAD"
	case errors.Is(err, ytvideodata.ErrVideoNotFound):
		out.Code = "VIDEO_NOT_FOUND"
	case errors.Is(err, ytvideodata.ErrVideoNotEmbeddable):
		out.Code = "VIDEO_NOT_EMBEDDABLE"
	default:
		out.Code = "INTERNAL_ERROR"
		c.logger.ErrorContext(ctx, "websocket handler failed", "error", err)
	}

	if err := sess.send(&Output{Type: "ERROR", Payload: out}); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}
