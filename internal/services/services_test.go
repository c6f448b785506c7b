package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"im-sync/internal/auth"
	"im-sync/internal/config"
	"im-sync/internal/imtypes"
	"im-sync/internal/state"
)

func newAPI(t *testing.T, h http.Handler) *APIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAPIClient(config.APIConfig{BaseURL: srv.URL + "/api/"}, nil)
}

func newStore(t *testing.T) auth.TokenStore {
	t.Helper()
	store, err := auth.NewBoltTokenStore(filepath.Join(t.TempDir(), "session.db"), "session", auth.NewSealer("test-secret"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoginStoresTokenAndAuthenticatesLaterCalls(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"token":"tok-1","user":{"id":"u1","username":"alice","email":"alice@example.com"}}`))
	})
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req createConversationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "one_to_one", req.Type)
		assert.Equal(t, []string{"u2"}, req.MemberIDs)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"c-1","type":"one_to_one"}`))
	})
	api := newAPI(t, mux)
	store := newStore(t)
	svc := NewAuthService(api, store)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)

	session, err := svc.Login(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, imtypes.ID("u1"), session.User.ID)

	stored, err := store.Load(ctx, SessionKey)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored)

	conv, err := NewConversationService(api, state.NewLocalState("u1")).Create(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, imtypes.ID("c-1"), conv.ID)
	assert.Equal(t, "Bearer tok-1", gotAuth)

	require.NoError(t, svc.Logout(ctx))
	assert.Empty(t, api.Token())
	_, err = store.Load(ctx, SessionKey)
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}

func TestRestoreUsesStoredToken(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, SessionKey, "tok-2"))

	api := NewAPIClient(config.APIConfig{BaseURL: "http://unused"}, nil)
	token, err := NewAuthService(api, store).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "tok-2", api.Token())
}

func TestFetchNotificationsReplacesState(t *testing.T) {
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		w.Write([]byte(`[{"id":2,"user_id":"u1","title":"b","is_read":false},{"id":1,"user_id":"u1","title":"a","is_read":true}]`))
	}))
	st := state.NewLocalState("u1")

	list, err := NewNotificationService(api, st).Fetch(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, imtypes.ID("2"), st.Notifications()[0].ID)
	assert.Equal(t, 1, st.UnreadCount())
}

func TestMarkReadFailureLeavesNotificationUnread(t *testing.T) {
	var path, method string
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	st := state.NewLocalState("u1")
	st.OnNotification(imtypes.NotificationEvent{Notification: imtypes.Notification{ID: "n1", Title: "hello"}})
	require.Equal(t, 1, st.UnreadCount())

	err := NewNotificationService(api, st).MarkRead(context.Background(), "n1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "database down", apiErr.Message)
	assert.Equal(t, "/api/notifications/n1/read", path)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, 1, st.UnreadCount())
	assert.False(t, st.Notifications()[0].IsRead)
}

func TestMarkReadUpdatesStateAfterSuccess(t *testing.T) {
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	st := state.NewLocalState("u1")
	st.OnNotification(imtypes.NotificationEvent{Notification: imtypes.Notification{ID: "n1", Title: "hello"}})

	require.NoError(t, NewNotificationService(api, st).MarkRead(context.Background(), "n1"))
	assert.Equal(t, 0, st.UnreadCount())
}

func TestMessagesLoadsHistory(t *testing.T) {
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/c-9/messages", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"messages":[
			{"ID":"m1","ConversationID":"c-9","SenderID":"u2","Content":"first","MessageType":"text","CreatedAt":"2024-05-01T10:00:00Z"},
			{"id":"m2","conversation_id":"c-9","sender_id":"u1","content":"second","created_at":1714557660000},
			{"id":"m2","conversation_id":"c-9","sender_id":"u1","content":"second","created_at":1714557660000}
		]}`))
	}))
	st := state.NewLocalState("u1")

	msgs, err := NewConversationService(api, st).Messages(context.Background(), "c-9", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	local := st.Messages("c-9")
	require.Len(t, local, 2)
	assert.Equal(t, "first", local[0].Text)
	assert.Equal(t, "u2", local[0].From)
	assert.Equal(t, imtypes.Timestamp(1714557600000), local[0].CreatedAt)
	assert.Equal(t, imtypes.ID("m2"), local[1].ID)
	assert.Equal(t, imtypes.TextMessageType, local[1].MsgType)
}

func TestRegisterPushToken(t *testing.T) {
	var got deviceToken
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tokens", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	svc := NewPushTokenService(api)

	require.NoError(t, svc.Register(context.Background(), "u1", "fcm-token", ""))
	assert.Equal(t, deviceToken{UserID: "u1", Token: "fcm-token", Platform: "web"}, got)

	assert.Error(t, svc.Register(context.Background(), "", "fcm-token", "web"))
}
