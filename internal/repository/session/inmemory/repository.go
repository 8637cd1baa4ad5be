package inmemory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/internal/repository/session"
)

type repo struct {
	connList map[*websocket.Conn]string
	idList   map[string]*websocket.Conn
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		connList: make(map[*websocket.Conn]string),
		idList:   make(map[string]*websocket.Conn),
		logger:   logger,
	}
}

func (r *repo) Add(conn *websocket.Conn, sessionID string) error {
	funcName := "session.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "session_id", sessionID)
	if _, ok := r.connList[conn]; ok {
		return session.ErrAlreadyExists
	}
	if _, ok := r.idList[sessionID]; ok {
		return session.ErrAlreadyExists
	}

	r.connList[conn] = sessionID
	r.idList[sessionID] = conn

	return nil
}

// Remove forgets the session without closing its connection.
func (r *repo) Remove(sessionID string) error {
	funcName := "session.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "session_id", sessionID)
	conn, ok := r.idList[sessionID]
	if !ok {
		return session.ErrNotFound
	}

	delete(r.connList, conn)
	delete(r.idList, sessionID)

	return nil
}

func (r *repo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.idList)
}

// CloseAll closes every registered connection and empties the registry.
func (r *repo) CloseAll() int {
	funcName := "session.inmemory.CloseAll"
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for conn, sessionID := range r.connList {
		if err := conn.Close(); err != nil {
			r.logger.Debug(funcName, "session_id", sessionID, "error", err)
		}
		closed++
	}

	r.connList = make(map[*websocket.Conn]string)
	r.idList = make(map[string]*websocket.Conn)

	r.logger.Info(funcName, "closed", closed)
	return closed
}
