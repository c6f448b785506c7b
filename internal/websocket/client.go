package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"im-sync/internal/auth"
	"im-sync/internal/config"
	"im-sync/internal/imtypes"
	"im-sync/internal/metrics"
	"im-sync/internal/state"
)

// Options wire optional collaborators into a Client.
type Options struct {
	// Dialer defaults to a gorilla/websocket dialer.
	Dialer  Dialer
	Metrics *metrics.Collector
	// OnStatus is called after every status transition of the current
	// connection.
	OnStatus func(Status)
	// OnError receives ServerReportedError and TransportError values.
	OnError func(error)
}

// Client keeps one live connection for the active identity and translates
// between the frame stream and LocalState.
//
// Inbound frames are applied one at a time in the order the socket delivers
// them. State subscribers and the OnStatus/OnError callbacks must not call
// Teardown, Connect, Send or SendTyping synchronously.
type Client struct {
	cfg      config.WebSocketConfig
	baseURL  string
	path     string
	dialer   Dialer
	state    *state.LocalState
	metrics  *metrics.Collector
	onStatus func(Status)
	onError  func(error)

	// dispatchMu serializes frame dispatch with Teardown and Send, so no frame
	// of a torn down connection is applied after Teardown returns.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	identity auth.Identity
	current  *Connection
	seq      uint64
	timer    *time.Timer
	stopped  bool
}

// NewClient creates a Client that applies events to st.
func NewClient(server config.ServerConfig, cfg config.WebSocketConfig, st *state.LocalState, opts Options) *Client {
	def := config.DefaultWebSocketConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.PingPeriodSeconds <= 0 {
		cfg.PingPeriodSeconds = def.PingPeriodSeconds
	}
	if cfg.PongWaitSeconds <= 0 {
		cfg.PongWaitSeconds = def.PongWaitSeconds
	}
	if cfg.WriteWaitSeconds <= 0 {
		cfg.WriteWaitSeconds = def.WriteWaitSeconds
	}
	if cfg.MaxMessageSizeBytes <= 0 {
		cfg.MaxMessageSizeBytes = def.MaxMessageSizeBytes
	}
	if cfg.HandshakeTimeoutSeconds <= 0 {
		cfg.HandshakeTimeoutSeconds = def.HandshakeTimeoutSeconds
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewDialer(cfg)
	}
	return &Client{
		cfg:      cfg,
		baseURL:  server.BaseURL,
		path:     server.WebSocketPath,
		dialer:   dialer,
		state:    st,
		metrics:  opts.Metrics,
		onStatus: opts.OnStatus,
		onError:  opts.OnError,
		stopped:  true,
	}
}

// State returns the LocalState the client writes to.
func (c *Client) State() *state.LocalState { return c.state }

// Identity returns the identity of the last Connect.
func (c *Client) Identity() auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Status returns the status of the current connection, or StatusStopped when
// there is none.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StatusStopped
	}
	return c.current.status
}

// Connect starts a connection for token and returns it in StatusConnecting.
// The handshake runs in the background; ctx bounds only that first dial.
// An empty token is a ConfigurationError and nothing is dialed. A connection
// that already exists is torn down first.
func (c *Client) Connect(ctx context.Context, token string) (*Connection, error) {
	id, err := auth.ParseIdentity(token)
	if err != nil {
		return nil, err
	}
	endpoint, err := BuildEndpoint(c.baseURL, c.path, id.Token)
	if err != nil {
		return nil, err
	}
	if id.Expired(time.Now()) {
		glog.Warningf("websocket: token for %s expired at %s, connecting anyway", id.UserID, id.ExpiresAt)
	}

	c.Teardown()

	if c.state.Identity() != id.UserID {
		c.state.Reset(id.UserID)
	}

	c.mu.Lock()
	c.stopped = false
	c.identity = id
	cn := c.newConnectionLocked(endpoint)
	c.mu.Unlock()

	glog.Infof("websocket: %s connecting to %s", cn, redact(endpoint))
	c.emitStatus(StatusConnecting)
	go c.dial(ctx, cn)
	return cn, nil
}

func (c *Client) newConnectionLocked(endpoint string) *Connection {
	c.seq++
	cn := &Connection{
		client:   c,
		id:       c.seq,
		endpoint: endpoint,
		identity: c.identity.UserID,
		send:     make(chan []byte, c.cfg.SendBufferSize),
		done:     make(chan struct{}),
		status:   StatusConnecting,
	}
	c.current = cn
	return cn
}

func (c *Client) dial(ctx context.Context, cn *Connection) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.HandshakeTimeoutSeconds)*time.Second)
	defer cancel()

	ws, _, err := c.dialer.DialContext(ctx, cn.endpoint, nil)
	if err != nil {
		c.connectionDown(cn, StatusFailed, &imtypes.TransportError{Op: "dial", Err: err})
		return
	}

	c.mu.Lock()
	if c.current != cn || cn.status != StatusConnecting {
		c.mu.Unlock()
		glog.V(2).Infof("websocket: %s was replaced while dialing", cn)
		ws.Close()
		return
	}
	cn.ws = ws
	cn.status = StatusOpen
	c.mu.Unlock()

	glog.Infof("websocket: %s open", cn)
	c.emitStatus(StatusOpen)

	go cn.writePump(ws)
	go cn.readPump(ws)
}

// connectionDown handles an unexpected failure of cn: it records status,
// schedules exactly one reconnect and surfaces err. Failures of connections
// that are no longer current are ignored.
func (c *Client) connectionDown(cn *Connection, status Status, err error) {
	c.mu.Lock()
	if c.current != cn || cn.status == StatusStopped || cn.status == StatusClosed || cn.status == StatusFailed {
		c.mu.Unlock()
		return
	}
	cn.status = status
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	cn.stop()
	glog.Warningf("websocket: %s %s: %v; reconnecting in %s", cn, status, err, c.cfg.ReconnectDelay)
	c.emitStatus(status)
	c.emitError(err)
}

// scheduleReconnectLocked arms a single reconnect after the fixed delay. The
// policy retries forever without backoff.
func (c *Client) scheduleReconnectLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.stopped || c.current == nil {
		c.mu.Unlock()
		return
	}
	if st := c.current.status; st != StatusClosed && st != StatusFailed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	cn := c.newConnectionLocked(c.current.endpoint)
	c.mu.Unlock()

	c.metrics.Reconnect()
	glog.Infof("websocket: %s reconnecting", cn)
	c.emitStatus(StatusConnecting)
	c.dial(context.Background(), cn)
}

// Teardown stops the current connection and the reconnect policy. The
// connection's callbacks are detached before its socket is closed, so no
// frame reaches LocalState afterwards. Calling Teardown again is a no-op.
func (c *Client) Teardown() {
	c.teardown(nil)
}

// teardown stops target, or the current connection when target is nil.
func (c *Client) teardown(target *Connection) {
	c.dispatchMu.Lock()
	c.mu.Lock()
	if target == nil {
		target = c.current
	}
	if target == nil {
		c.stopped = true
		c.mu.Unlock()
		c.dispatchMu.Unlock()
		return
	}
	wasCurrent := target == c.current
	if wasCurrent {
		c.stopped = true
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.current = nil
	}
	already := target.status == StatusStopped
	target.status = StatusStopped
	c.mu.Unlock()
	c.dispatchMu.Unlock()

	if already {
		return
	}
	target.stop()
	glog.Infof("websocket: %s stopped", target)
	if wasCurrent {
		c.emitStatus(StatusStopped)
	}
}

// Dispatch decodes raw and applies its events to LocalState.
//
// A malformed frame is dropped as a whole and returned as *ParseError; state
// is left untouched. A frame with an error field is applied (recorded for
// display) and returned as *ServerReportedError. Unknown kinds are skipped.
// Dispatch never panics.
func (c *Client) Dispatch(raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("websocket: dispatch panic on frame %q: %v", raw, r)
			err = errors.Errorf("dispatch panic: %v", r)
		}
	}()
	c.metrics.FrameReceived()

	values, err := imtypes.SplitFrames(raw)
	if err != nil {
		c.metrics.FrameDropped()
		glog.Warningf("websocket: drop frame: %v", err)
		return err
	}
	events := make([]imtypes.InboundEvent, 0, len(values))
	for _, v := range values {
		ev, err := imtypes.DecodeInbound(v)
		if err != nil {
			c.metrics.FrameDropped()
			glog.Warningf("websocket: drop frame: %v", err)
			return err
		}
		if ev == nil {
			glog.V(3).Infof("websocket: skip frame of unknown kind: %s", v)
			continue
		}
		events = append(events, ev)
	}

	var reported error
	for _, ev := range events {
		ev.Accept(c.state)
		if se, ok := ev.(imtypes.ServerErrorEvent); ok {
			c.metrics.ServerError()
			glog.Warningf("websocket: server reported: %s", se.Message)
			reported = &imtypes.ServerReportedError{Kind: se.FrameKind, Message: se.Message}
		}
	}
	return reported
}

// dispatchFrom dispatches a frame read by cn, unless cn has been torn down
// or replaced.
func (c *Client) dispatchFrom(cn *Connection, raw []byte) error {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	live := c.current == cn && cn.status == StatusOpen
	c.mu.Unlock()
	if !live {
		glog.V(3).Infof("websocket: drop late frame of %s", cn)
		return nil
	}
	return c.Dispatch(raw)
}

// Send queues msg on the current connection and appends a provisional copy
// to LocalState. It returns false, without any I/O, when the connection is
// not open, the text is blank or the outbound buffer is full. Send never
// blocks on the network.
//
// Missing fields are filled in: From with the local identity, ClientID with a
// fresh correlation id, ChatID with the derived conversation id, MsgType with
// text and CreatedAt with the current time.
func (c *Client) Send(msg imtypes.OutboundMessage) bool {
	if strings.TrimSpace(msg.Text) == "" {
		c.rejected("empty_body", imtypes.ErrEmptyBody)
		return false
	}

	// Held until the provisional copy is appended, so an echo of msg cannot
	// be dispatched ahead of it.
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	msg.Type = imtypes.OutboundMessageKind
	if msg.From == "" {
		msg.From = c.identity.UserID
	}
	if msg.ClientID == "" {
		msg.ClientID = msg.From + "-" + uuid.NewString()
	}
	if msg.ChatID == "" {
		msg.ChatID = imtypes.ConversationID(msg.From, msg.To)
	}
	if msg.MsgType == "" {
		msg.MsgType = imtypes.TextMessageType
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = imtypes.Now()
	}
	ok := c.enqueueLocked(msg)
	c.mu.Unlock()
	if !ok {
		return false
	}

	c.state.AppendProvisional(msg.LocalCopy())
	return true
}

// SendTyping tells the server whether the local user is typing in
// conversationID. It has the same preconditions as Send and no local echo.
func (c *Client) SendTyping(conversationID string, isTyping bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(imtypes.NewTypingFrame(conversationID, isTyping))
}

func (c *Client) enqueueLocked(v interface{}) bool {
	cn := c.current
	if cn == nil || cn.status != StatusOpen {
		c.rejected("not_open", imtypes.ErrNotOpen)
		return false
	}
	frame, err := json.Marshal(v)
	if err != nil {
		c.rejected("encode", errors.Wrap(err, "encode outbound frame"))
		return false
	}
	select {
	case cn.send <- frame:
		c.metrics.SendAccepted()
		return true
	default:
		c.rejected("buffer_full", imtypes.ErrBufferFull)
		return false
	}
}

func (c *Client) rejected(reason string, err error) {
	c.metrics.SendRejected(reason)
	glog.V(2).Infof("websocket: outbound frame refused: %v", err)
}

func (c *Client) emitStatus(s Status) {
	c.metrics.SetStatus(s.String(), AllStatuses())
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func (c *Client) emitError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// redact hides the token query parameter in logs.
func redact(endpoint string) string {
	if i := strings.Index(endpoint, "token="); i >= 0 {
		return endpoint[:i] + "token=***"
	}
	return endpoint
}
