package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"im-sync/internal/config"
)

// Conn is the part of *websocket.Conn a Connection uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a Conn to a websocket endpoint.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (Conn, *http.Response, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer(cfg config.WebSocketConfig) Dialer {
	return &gorillaDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSeconds) * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}}
}

func (d *gorillaDialer) DialContext(ctx context.Context, urlStr string, h http.Header) (Conn, *http.Response, error) {
	conn, resp, err := d.dialer.DialContext(ctx, urlStr, h)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}
