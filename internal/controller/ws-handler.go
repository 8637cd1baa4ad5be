package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/internal/service/search"
	"github.com/pomodorotube/server/internal/timer"
	"github.com/pomodorotube/server/pkg/ctxlogger"
	"github.com/pomodorotube/server/pkg/debounce"
	"github.com/pomodorotube/server/pkg/validator"
	"github.com/pomodorotube/server/pkg/ytvideodata"
)

var ErrValidationError = errors.New("validation error")

type validationError struct {
	errors []validator.ValidationError
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrValidationError, e.errors)
}

func (e *validationError) Unwrap() error {
	return ErrValidationError
}

func (c *controller) session(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sessionID := uuid.NewString()
	// decoupled from the request, the session ends with the connection
	ctx := ctxlogger.AppendCtx(context.WithoutCancel(r.Context()), slog.String("session_id", sessionID))
	ctx, cancel := context.WithCancel(ctx)

	sess := c.newSession(ctx, cancel, sessionID, conn)
	defer sess.close()
	go sess.writePump(ctx, c.logger)

	if err := c.sessionRepo.Add(conn, sessionID); err != nil {
		c.logger.WarnContext(ctx, "failed to register session", "error", err)
		conn.Close()
		return
	}
	defer c.sessionRepo.Remove(sessionID)

	c.logger.InfoContext(ctx, "session started")

	if err := sess.send(&Output{
		Type: "SESSION_STARTED",
		Payload: map[string]any{
			"session_id":  sess.id,
			"timer":       newTimerOutput(sess.timer.State()),
			"debounce_ms": c.searchDebounce.Milliseconds(),
		},
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to queue session start", "error", err)
		conn.Close()
		return
	}

	ctx = context.WithValue(ctx, sessionCtxKey, sess)
	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "session ended", "reason", err)
	}
}

func (c *controller) newSession(ctx context.Context, cancel context.CancelFunc, id string, conn *websocket.Conn) *session {
	sess := &session{
		id:     id,
		conn:   conn,
		cancel: cancel,
		out:    make(chan *Output, sendBufferSize),
		done:   make(chan struct{}),
	}

	sess.timer = timer.New(&timer.Config{
		Durations: c.timerDurations,
		Interval:  c.timerInterval,
		OnTick: func(st timer.State) {
			if err := sess.send(&Output{Type: "TIMER_UPDATED", Payload: newTimerOutput(st)}); err != nil {
				c.logger.DebugContext(ctx, "failed to send timer update", "error", err)
			}
		},
		OnTimeOver: func(st timer.State) {
			c.logger.InfoContext(ctx, "time is over", "mode", st.Mode)
			out := timeOverOutput{timerOutput: newTimerOutput(st), VideoID: sess.getSelectedVideoID()}
			if err := sess.send(&Output{Type: "TIME_OVER", Payload: out}); err != nil {
				c.logger.DebugContext(ctx, "failed to send time over", "error", err)
			}
		},
	})

	sess.debouncer = debounce.New(c.searchDebounce, func(ctx context.Context, query string) {
		c.runSearch(ctx, sess, query)
	}, debounce.WithContext[string](ctx))

	return sess
}

type searchResultsOutput struct {
	Query  string         `json:"query"`
	Videos []search.Video `json:"videos"`
	Error  string         `json:"error,omitempty"`
}

// runSearch executes one debounced search. ctx is cancelled as soon as a
// newer input supersedes query.
func (c *controller) runSearch(ctx context.Context, sess *session, query string) {
	sess.searchMu.Lock()
	if ctx.Err() != nil {
		sess.searchMu.Unlock()
		return
	}
	if err := sess.send(&Output{Type: "SEARCH_LOADING", Payload: map[string]string{"query": query}}); err != nil {
		c.logger.DebugContext(ctx, "failed to send search loading", "error", err)
	}
	sess.searchMu.Unlock()

	searchResp, err := c.searchService.Search(ctx, &search.SearchParams{Query: query})

	sess.searchMu.Lock()
	defer sess.searchMu.Unlock()

	if ctx.Err() != nil {
		c.logger.DebugContext(ctx, "discarding superseded search", "query", query)
		return
	}

	out := searchResultsOutput{Query: query, Videos: searchResp.Videos}
	if out.Videos == nil {
		out.Videos = []search.Video{}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "search failed", "query", query, "error", err)
		out.Error = "search failed"
	}

	if err := sess.send(&Output{Type: "SEARCH_RESULTS", Payload: out}); err != nil {
		c.logger.DebugContext(ctx, "failed to send search results", "error", err)
	}
}

type EmptyInput struct{}

func (c *controller) handleAlive(_ context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return nil
}

type SearchInput struct {
	Value string `json:"value" validate:"max=256"`
}

func (c *controller) handleSearchInput(ctx context.Context, _ *websocket.Conn, input SearchInput) error {
	sess := c.getSessionFromCtx(ctx)

	if validationErrors, ok := c.validate.Validate(input); !ok {
		return &validationError{errors: validationErrors}
	}

	query := search.NormalizeQuery(input.Value)

	sess.searchMu.Lock()
	defer sess.searchMu.Unlock()

	if query == "" {
		sess.debouncer.Cancel()
		return sess.send(&Output{
			Type:    "SEARCH_RESULTS",
			Payload: searchResultsOutput{Query: "", Videos: []search.Video{}},
		})
	}

	sess.debouncer.Trigger(query)
	return nil
}

type SelectVideoInput struct {
	VideoID string                     `json:"video_id" validate:"required,videoid"`
	Options *ytvideodata.PlayerOptions `json:"options"`
}

func (c *controller) handleSelectVideo(ctx context.Context, _ *websocket.Conn, input SelectVideoInput) error {
	sess := c.getSessionFromCtx(ctx)

	if validationErrors, ok := c.validate.Validate(input); !ok {
		return &validationError{errors: validationErrors}
	}

	opts := ytvideodata.DefaultPlayerOptions()
	if input.Options != nil {
		opts = *input.Options
	}

	videoData, err := c.videoDataClient.Get(ctx, input.VideoID)
	if err != nil {
		switch {
		case errors.Is(err, ytvideodata.ErrVideoNotFound), errors.Is(err, ytvideodata.ErrVideoNotEmbeddable):
			return fmt.Errorf("failed to select video: %w", err)
		default:
			// metadata is cosmetic, the player only needs the id
			c.logger.WarnContext(ctx, "failed to get video data", "video_id", input.VideoID, "error", err)
			videoData = nil
		}
	}

	sess.setSelectedVideoID(input.VideoID)

	return sess.send(&Output{
		Type:    "VIDEO_SELECTED",
		Payload: c.newVideoOutput(input.VideoID, videoData, opts),
	})
}

func (c *controller) handleTimerStart(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	c.getSessionFromCtx(ctx).timer.Start()
	return nil
}

func (c *controller) handleTimerPause(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	c.getSessionFromCtx(ctx).timer.Pause()
	return nil
}

func (c *controller) handleTimerToggle(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	c.getSessionFromCtx(ctx).timer.Toggle()
	return nil
}

func (c *controller) handleTimerReset(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	c.getSessionFromCtx(ctx).timer.Reset()
	return nil
}

type TimerSetModeInput struct {
	Mode timer.Mode `json:"mode" validate:"required,oneof=POMODORO SHORT_BREAK LONG_BREAK"`
}

func (c *controller) handleTimerSetMode(ctx context.Context, _ *websocket.Conn, input TimerSetModeInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return &validationError{errors: validationErrors}
	}

	if _, err := c.getSessionFromCtx(ctx).timer.SetMode(input.Mode); err != nil {
		return fmt.Errorf("failed to set timer mode: %w", err)
	}

	return nil
}
