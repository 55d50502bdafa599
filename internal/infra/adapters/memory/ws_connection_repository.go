package memory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/overbid/liveshow/internal/application/constant"
)

// WebsocketConnectionRepository tracks the active commerce channel
// connections in memory, one per viewer.
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(userID uuid.UUID)

	Write(uuid.UUID, any)
}

// safeWS serializes writes; gorilla allows one concurrent writer.
type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsConnectionRepository struct {
	// wsConns holds map[viewer_id]*ws.conn
	wsConns map[uuid.UUID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(userID uuid.UUID, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wsConns[userID] = &safeWS{conn: conn}
}

func (w *wsConnectionRepository) Remove(userID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.wsConns, userID)
}

func (w *wsConnectionRepository) Write(userID uuid.UUID, payload any) {
	safews, ok := w.getSafeWS(userID)
	if !ok {
		slog.Warn("write to unknown websocket", slog.Any(constant.ViewerID, userID))
		return
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	if err := safews.conn.WriteJSON(payload); err != nil {
		slog.Error("write to websocket",
			slog.Any(constant.Error, err),
			slog.Any(constant.ViewerID, userID),
		)
	}
}

func (w *wsConnectionRepository) getSafeWS(userID uuid.UUID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	safews, ok := w.wsConns[userID]

	return safews, ok
}
