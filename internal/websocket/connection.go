package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"im-sync/internal/imtypes"
)

// Status is the lifecycle state of a Connection.
//
//	connecting -> open -> closed -> connecting ...   (reconnect loop)
//	connecting -> failed -> connecting ...
//	any -> stopped                                   (Teardown only)
type Status int32

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
	StatusFailed
	StatusStopped
)

var statusNames = [...]string{"connecting", "open", "closed", "failed", "stopped"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// AllStatuses returns the names of every status.
func AllStatuses() []string {
	return statusNames[:]
}

// Connection is one websocket channel for one identity. Reconnecting creates a
// new Connection; the old one never delivers events again.
type Connection struct {
	client   *Client
	id       uint64
	endpoint string
	identity string

	// Buffered channel of outbound frames.
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once

	// guarded by client.mu
	status Status
	ws     Conn
}

func (cn *Connection) String() string {
	return fmt.Sprintf("conn#%d(%s)", cn.id, cn.identity)
}

// Status returns the connection's current status.
func (cn *Connection) Status() Status {
	cn.client.mu.Lock()
	defer cn.client.mu.Unlock()
	return cn.status
}

// Teardown stops this connection. If it is the client's current connection
// the reconnect policy stops too. Calling it twice is a no-op.
func (cn *Connection) Teardown() {
	cn.client.teardown(cn)
}

// stop closes done, which makes the write pump send a close frame and close
// the socket. The read pump then fails and exits.
func (cn *Connection) stop() {
	cn.stopOnce.Do(func() { close(cn.done) })
}

// handleFrame is the connection's inbound callback.
func (cn *Connection) handleFrame(data []byte) {
	if err := cn.client.dispatchFrom(cn, data); err != nil {
		if _, ok := err.(*imtypes.ServerReportedError); ok {
			cn.client.emitError(err)
		}
	}
}

// readPump pumps frames from the websocket connection to handleFrame.
func (cn *Connection) readPump(ws Conn) {
	cfg := cn.client.cfg
	pongWait := time.Duration(cfg.PongWaitSeconds) * time.Second

	ws.SetReadLimit(int64(cfg.MaxMessageSizeBytes))
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("websocket: %s read error: %v", cn, err)
			} else {
				glog.V(2).Infof("websocket: %s read loop ends: %v", cn, err)
			}
			cn.client.connectionDown(cn, StatusClosed, &imtypes.TransportError{Op: "read", Err: err})
			return
		}
		if messageType != websocket.TextMessage {
			glog.Warningf("websocket: %s ignores non-text frame of type %d", cn, messageType)
			continue
		}
		if glog.V(5) {
			glog.Infof("websocket: %s <- %s", cn, data)
		}
		cn.handleFrame(data)
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
// It is the only writer of ws.
func (cn *Connection) writePump(ws Conn) {
	cfg := cn.client.cfg
	writeWait := time.Duration(cfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-cn.done:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-cn.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				cn.client.connectionDown(cn, StatusClosed, &imtypes.TransportError{Op: "write", Err: err})
				return
			}
			if glog.V(5) {
				glog.Infof("websocket: %s -> %s", cn, frame)
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				cn.client.connectionDown(cn, StatusClosed, &imtypes.TransportError{Op: "write", Err: err})
				return
			}
		}
	}
}
