package websocket

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"im-sync/internal/config"
)

var newline = []byte{'\n'}

// Subscriber is a middleman between a local websocket connection and the hub.
type Subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string

	// Buffered channel of outbound changes.
	send chan []byte
}

// readPump only watches for the peer going away; subscribers have nothing to
// say.
func (s *Subscriber) readPump(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()
	pongWait := time.Duration(cfg.PongWaitSeconds) * time.Second
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				glog.Warningf("hub: subscriber %s: %v", s.remote, err)
			}
			return
		}
	}
}

// writePump pumps changes from the hub to the websocket connection. Queued
// changes are batched into one frame, newline separated.
func (s *Subscriber) writePump(cfg config.WebSocketConfig) {
	writeWait := time.Duration(cfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-s.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeEvents upgrades the request and streams state changes to the peer.
// checkOrigin may be nil to accept same-origin requests only.
func ServeEvents(hub *Hub, cfg config.WebSocketConfig, checkOrigin func(r *http.Request) bool) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Warningf("hub: upgrade %s: %v", r.RemoteAddr, err)
			return
		}
		s := &Subscriber{
			hub:    hub,
			conn:   conn,
			remote: r.RemoteAddr,
			send:   make(chan []byte, 256),
		}
		if !hub.add(s) {
			conn.Close()
			return
		}

		go s.writePump(cfg)
		go s.readPump(cfg)
	}
}
