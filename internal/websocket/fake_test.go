package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type inbound struct {
	data []byte
	err  error
}

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// ReadMessage; text frames written by the client are collected in written.
type fakeConn struct {
	in      chan inbound
	written chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan inbound, 16),
		written: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) deliver(frame string) { f.in <- inbound{data: []byte(frame)} }

// drop makes the next read fail as if the server went away.
func (f *fakeConn) drop() { f.in <- inbound{err: errors.New("connection reset by peer")} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.in:
		if m.err != nil {
			return 0, nil, m.err
		}
		return websocket.TextMessage, m.data, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return websocket.ErrCloseSent
	default:
	}
	if messageType == websocket.TextMessage {
		f.written <- data
	}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out the queued results in order. Once the queue is empty
// every dial fails.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	urls    []string
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) push(conn *fakeConn, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: conn, err: err})
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) DialContext(_ context.Context, urlStr string, _ http.Header) (Conn, *http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, urlStr)
	if len(d.results) == 0 {
		return nil, nil, errors.New("connection refused")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.conn, nil, nil
}
