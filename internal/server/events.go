package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/events"
)

const (
	// eventWriteTimeout bounds each websocket write; a client that cannot
	// accept an event within it is disconnected.
	eventWriteTimeout = 5 * time.Second
	// eventPingInterval keeps idle connections alive through proxies.
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The monitor server binds to localhost by default; the feed carries
	// no mutations, so cross-origin reads are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades the connection and streams lifecycle events as
// JSON frames until the client disconnects or falls behind.
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("Event feed client connected", slog.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	var closeOnce sync.Once
	closeFeed := func() {
		closeOnce.Do(func() { close(done) })
	}

	// Writes come from two goroutines (event delivery and pings), and
	// gorilla allows at most one concurrent writer.
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		return conn.WriteJSON(v)
	}

	sub := h.events.Subscribe(func(ev events.Event) {
		if err := writeJSON(ev); err != nil {
			h.logger.Debug("Event feed write failed, dropping client",
				slog.String("remote", r.RemoteAddr),
				slog.String("error", err.Error()),
			)
			closeFeed()
		}
	})
	defer sub.Cancel()

	// Ping loop; a peer that stops responding fails the next write.
	go func() {
		ticker := time.NewTicker(eventPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					closeFeed()
					return
				}
			}
		}
	}()

	// Read loop: the feed is one-way, but reading is required to process
	// control frames and observe the peer closing.
	go func() {
		defer closeFeed()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	<-done
	conn.Close()
	h.logger.Info("Event feed client disconnected", slog.String("remote", r.RemoteAddr))
}
