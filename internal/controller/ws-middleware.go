package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/pkg/ctxlogger"
	"github.com/pomodorotube/server/pkg/wsrouter"
)

func (c *controller) wsLoggingMw(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))

		start := time.Now()
		err := next(ctx, conn, payload)
		c.logger.DebugContext(ctx, "websocket message handled",
			slog.Duration("duration", time.Since(start)),
			slog.Bool("ok", err == nil),
		)

		return err
	}
}
