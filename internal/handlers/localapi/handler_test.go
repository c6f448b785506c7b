package localapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"im-sync/internal/auth"
	"im-sync/internal/config"
	"im-sync/internal/imtypes"
	"im-sync/internal/metrics"
	"im-sync/internal/state"
	"im-sync/internal/websocket"
)

type fakeClient struct {
	status  websocket.Status
	state   *state.LocalState
	sent    []imtypes.OutboundMessage
	typings []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{status: websocket.StatusOpen, state: state.NewLocalState("u1")}
}

func (f *fakeClient) Status() websocket.Status { return f.status }

func (f *fakeClient) Identity() auth.Identity {
	return auth.Identity{UserID: "u1", Username: "alice", Token: "t"}
}

func (f *fakeClient) State() *state.LocalState { return f.state }

func (f *fakeClient) Send(msg imtypes.OutboundMessage) bool {
	if f.status != websocket.StatusOpen {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeClient) SendTyping(conversationID string, isTyping bool) bool {
	if f.status != websocket.StatusOpen {
		return false
	}
	f.typings = append(f.typings, conversationID)
	return true
}

func newTestRouter(client *fakeClient, cfg config.LocalAPIConfig) http.Handler {
	return NewRouter(NewHandler(client, nil, nil), nil, config.DefaultWebSocketConfig(), nil, cfg)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendMessageHandler(t *testing.T) {
	client := newFakeClient()
	h := newTestRouter(client, config.LocalAPIConfig{})

	rec := do(t, h, http.MethodPost, "/messages", `{"to":"u2","text":"hi"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "u2", client.sent[0].To)

	rec = do(t, h, http.MethodPost, "/messages", `{"to":"u2","text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/messages", `{"text":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/messages", `{"to":"u2","text":"hi","msg_type":"sticker"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/messages", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	client.status = websocket.StatusClosed
	rec = do(t, h, http.MethodPost, "/messages", `{"to":"u2","text":"later"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "closed")
	assert.Len(t, client.sent, 1)
}

func TestSendTypingHandler(t *testing.T) {
	client := newFakeClient()
	h := newTestRouter(client, config.LocalAPIConfig{})

	rec := do(t, h, http.MethodPost, "/typing", `{"conversation_id":"chat-u1-u2","is_typing":true}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"chat-u1-u2"}, client.typings)

	rec = do(t, h, http.MethodPost, "/typing", `{"is_typing":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateAndStatusHandlers(t *testing.T) {
	client := newFakeClient()
	client.state.OnMessage(imtypes.MessageEvent{Message: imtypes.Message{ID: "m1", From: "u2", To: "u1", Text: "hi"}})
	client.state.OnServerError(imtypes.ServerErrorEvent{Message: "rate limited"})
	h := newTestRouter(client, config.LocalAPIConfig{})

	rec := do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "u1", snap.Identity)
	assert.Len(t, snap.Conversations["chat-u1-u2"], 1)
	assert.Equal(t, "rate limited", snap.LastError)

	rec = do(t, h, http.MethodDelete, "/state/error", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, client.state.LastError())

	rec = do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "open", status.Status)
	assert.Equal(t, "u1", status.UserID)
	assert.Nil(t, status.ExpiresAt)

	rec = do(t, h, http.MethodGet, "/conversations/chat-u1-u2/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []imtypes.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, imtypes.ID("m1"), messages[0].ID)

	rec = do(t, h, http.MethodGet, "/conversations/chat-u1-u9/messages", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	// No REST service configured.
	rec = do(t, h, http.MethodGet, "/conversations/chat-u1-u2/messages?refresh=true", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMarkNotificationReadLocally(t *testing.T) {
	client := newFakeClient()
	client.state.OnNotification(imtypes.NotificationEvent{Notification: imtypes.Notification{ID: "n1", Title: "ping"}})
	h := newTestRouter(client, config.LocalAPIConfig{})

	rec := do(t, h, http.MethodPatch, "/notifications/n1/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, client.state.UnreadCount())

	rec = do(t, h, http.MethodPatch, "/notifications/n1/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccessKeyAndCORS(t *testing.T) {
	cfg := config.LocalAPIConfig{
		AccessKey: "k",
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "X-Access-Key"},
		},
	}
	h := newTestRouter(newFakeClient(), cfg)

	rec := do(t, h, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("X-Access-Key", "k")
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "bearer", status.AccessMethod)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameReceived()

	h := NewRouter(NewHandler(newFakeClient(), nil, nil), nil, config.DefaultWebSocketConfig(), reg, config.LocalAPIConfig{})
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "frames_received_total 1")
}

func TestEventsRouteStreamsChanges(t *testing.T) {
	client := newFakeClient()
	hub := websocket.NewHub()
	detach := hub.Attach(client.state)
	defer detach()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	h := NewRouter(NewHandler(client, nil, nil), hub, config.DefaultWebSocketConfig(), nil, config.LocalAPIConfig{AccessKey: "k"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?access_key=k"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscriber registers asynchronously, so publish until a change arrives.
	got := make(chan []byte, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err == nil {
			got <- data
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		client.state.OnServerError(imtypes.ServerErrorEvent{Message: "boom"})
		select {
		case data := <-got:
			first := strings.SplitN(string(data), "\n", 2)[0]
			assert.JSONEq(t, `{"kind":"server_error","error":"boom"}`, first)
			return
		case <-deadline:
			t.Fatal("no change streamed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
