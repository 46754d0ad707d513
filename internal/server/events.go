package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/audiolibrelab/camcapture/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the control page is served on the LAN from any host name
	},
}

// EventMessage is the websocket envelope. Every message carries a fresh status.
type EventMessage struct {
	Event  session.EventType `json:"event"`
	Notice *session.Notice   `json:"notice,omitempty"`
	Status *session.Status   `json:"status,omitempty"`
}

// handleEvents streams session events until the client goes away or the session closes
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go s.readPump(conn, gone)

	if err := s.writeEvent(conn, session.Event{Type: session.EventState}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readPump discards client messages and signals when the connection drops
func (s *Server) readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev session.Event) error {
	msg := EventMessage{Event: ev.Type, Notice: ev.Notice}
	if st, err := s.service.Status(); err == nil {
		msg.Status = &st
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
