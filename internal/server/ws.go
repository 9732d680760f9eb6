package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/rep"
)

const (
	writeWait    = 5 * time.Second
	liveBuffer   = 64
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LiveHandler pushes every session update to WebSocket clients as JSON.
type LiveHandler struct {
	session *rep.Session
}

// NewLiveHandler creates a LiveHandler for session.
func NewLiveHandler(session *rep.Session) *LiveHandler {
	return &LiveHandler{session: session}
}

// ServeHTTP upgrades the connection, sends the current snapshot and then one
// message per update. A client that falls behind misses updates rather than
// slowing the session down.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("websocket upgrade error")
		return
	}
	defer conn.Close()

	updates, cancel := h.session.Subscribe(liveBuffer)
	defer cancel()

	// reads only to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := write(conn, rep.Update{Snapshot: h.session.Snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := write(conn, u); err != nil {
				logrus.WithError(err).Debug("live client write failed")
				return
			}
		}
	}
}

func write(conn *websocket.Conn, u rep.Update) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(u)
}
