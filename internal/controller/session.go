package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/internal/timer"
	"github.com/pomodorotube/server/pkg/debounce"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	sendBufferSize = 64
)

var (
	errSessionClosed = errors.New("session closed")
	errSlowClient    = errors.New("client is not reading")
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type timerOutput struct {
	timer.State
	Display string `json:"display"`
}

func newTimerOutput(st timer.State) timerOutput {
	return timerOutput{State: st, Display: st.Display()}
}

type timeOverOutput struct {
	timerOutput
	VideoID string `json:"video_id,omitempty"`
}

// session is the server side of one browser tab: a timer, a debounced
// search box and the selected video.
type session struct {
	id     string
	conn   *websocket.Conn
	cancel context.CancelFunc

	// out is drained by writePump, the only writer of conn
	out       chan *Output
	done      chan struct{}
	closeOnce sync.Once

	// searchMu orders result delivery against supersede/clear so stale results never reach the client
	searchMu  sync.Mutex
	debouncer *debounce.Debouncer[string]
	timer     *timer.Timer

	mu              sync.Mutex
	selectedVideoID string
}

// send queues out for the client without blocking. A client that lets the
// queue fill up is disconnected.
func (s *session) send(out *Output) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.out <- out:
		return nil
	default:
		s.conn.Close()
		return errSlowClient
	}
}

func (s *session) writePump(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case out := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(out); err != nil {
				logger.DebugContext(ctx, "failed to write json", "type", out.Type, "error", err)
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) setSelectedVideoID(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedVideoID = videoID
}

func (s *session) getSelectedVideoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selectedVideoID
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.debouncer.Stop()
		s.timer.Close()
		s.cancel()
		close(s.done)
	})
}
