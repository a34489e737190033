package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"postergen/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 1024
)

type eventMessage struct {
	Type    string          `json:"type"`
	Session sessionResponse `json:"session"`
}

// Events streams a snapshot of the session after every change. The first
// frame is the current snapshot. Client frames are read only to detect
// disconnects.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	logger := a.Logger.With().
		Str("session_id", s.ID).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Logger()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("http: websocket upgrade failed")
		return
	}
	defer conn.Close()

	release := s.Watch()
	defer release()
	updates, stop := s.Pipeline.Subscribe()
	defer stop()

	readWait := 2 * a.pingInterval
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()
	logger.Debug().Msg("http: event stream opened")
	defer logger.Debug().Msg("http: event stream closed")

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(eventMessage{Type: "snapshot", Session: presentSnapshot(s.ID, snap, locale)}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
