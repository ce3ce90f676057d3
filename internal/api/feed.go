package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const feedWriteWait = 10 * time.Second

// handleFeed streams change events to a websocket client until either side
// goes away. Each connection gets its own hub subscription.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeProblem(w, http.StatusNotFound, Problem{Title: "Not Found", Detail: "change feed is disabled"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()
	s.logger.Debug("feed subscriber connected", "remote", r.RemoteAddr)

	// The client never sends anything we use; reading surfaces its close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.done:
			closeFeed(conn)
			return
		case <-gone:
			s.logger.Debug("feed subscriber left", "remote", r.RemoteAddr)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("feed write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

// closeFeed tells the client the server is going away
func closeFeed(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
