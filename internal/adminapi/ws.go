package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single frame write may take before a
// subscriber is judged too slow and disconnected, rather than allowed to
// block the registry's writer.
const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The Admin API is an internal, read-only surface with no cookies or
	// credentials to protect, so any origin may open the feed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWSDispatch streams one JSON record per task as the worker pool
// picks it up off the dispatch channel.
func (s *Server) handleWSDispatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	records, unsubscribe := s.reg.Subscribe()
	defer unsubscribe()

	// Drain and discard anything the client sends; we only care about
	// detecting when it goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}
