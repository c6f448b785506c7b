// Package localapi exposes the synced state of the running client over HTTP
// so that a local UI or script can read it and send through the live
// connection.
package localapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"im-sync/internal/auth"
	"im-sync/internal/imtypes"
	"im-sync/internal/middleware"
	"im-sync/internal/services"
	"im-sync/internal/state"
	"im-sync/internal/websocket"
)

// SyncClient is the part of the realtime client the local API drives.
type SyncClient interface {
	Status() websocket.Status
	Identity() auth.Identity
	State() *state.LocalState
	Send(msg imtypes.OutboundMessage) bool
	SendTyping(conversationID string, isTyping bool) bool
}

// Handler serves the local API. Notifications and Conversations are optional;
// without them the read-only routes still answer from local state.
type Handler struct {
	Client        SyncClient
	Notifications services.NotificationService
	Conversations services.ConversationService
}

// NewHandler creates a Handler for client.
func NewHandler(client SyncClient, notifications services.NotificationService, conversations services.ConversationService) *Handler {
	return &Handler{
		Client:        client,
		Notifications: notifications,
		Conversations: conversations,
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse describes the connection and who it belongs to.
type StatusResponse struct {
	Status    string     `json:"status"`
	UserID    string     `json:"userId,omitempty"`
	Username  string     `json:"username,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
	// AccessMethod is how the caller presented the access key, empty when
	// the local API is open.
	AccessMethod string `json:"accessMethod,omitempty"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	To      string              `json:"to"`
	ChatID  string              `json:"chat_id,omitempty"`
	Text    string              `json:"text"`
	MsgType imtypes.MessageType `json:"msg_type,omitempty"`
}

// TypingRequest is the body of POST /typing.
type TypingRequest struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	MemberIDs []string `json:"member_ids"`
}

// GetStateHandler returns a snapshot of the local state.
func (h *Handler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.Client.State().Snapshot())
}

// ClearErrorHandler dismisses the last server reported error.
func (h *Handler) ClearErrorHandler(w http.ResponseWriter, r *http.Request) {
	h.Client.State().ClearError()
	w.WriteHeader(http.StatusNoContent)
}

// GetStatusHandler reports the connection status.
func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := h.Client.Identity()
	resp := StatusResponse{
		Status:   h.Client.Status().String(),
		UserID:   id.UserID,
		Username: id.Username,
		Expired:  id.Expired(time.Now()),
	}
	if method, ok := middleware.GetAccessMethodFromContext(r.Context()); ok {
		resp.AccessMethod = method
	}
	if !id.ExpiresAt.IsZero() {
		exp := id.ExpiresAt
		resp.ExpiresAt = &exp
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// SendMessageHandler sends a chat message through the live connection. The
// message is accepted (202) once it is queued; the server echo arrives later
// on the event stream.
func (h *Handler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.To == "" && req.ChatID == "" {
		writeJSONError(w, "to or chat_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, imtypes.ErrEmptyBody.Error(), http.StatusBadRequest)
		return
	}
	if !req.MsgType.Valid() {
		writeJSONError(w, "unsupported msg_type "+string(req.MsgType), http.StatusBadRequest)
		return
	}

	ok := h.Client.Send(imtypes.OutboundMessage{
		To:      req.To,
		ChatID:  req.ChatID,
		Text:    req.Text,
		MsgType: req.MsgType,
	})
	if !ok {
		writeJSONError(w, "message not sent: connection is "+h.Client.Status().String(), http.StatusConflict)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": string(imtypes.StatusSending)})
}

// SendTypingHandler forwards a typing indicator.
func (h *Handler) SendTypingHandler(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.ConversationID == "" {
		writeJSONError(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	if !h.Client.SendTyping(req.ConversationID, req.IsTyping) {
		writeJSONError(w, "typing not sent: connection is "+h.Client.Status().String(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkNotificationReadHandler marks a notification read, locally and on the
// notification service when one is configured.
func (h *Handler) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id := imtypes.ID(mux.Vars(r)["notificationID"])

	if h.Notifications == nil {
		if !h.Client.State().MarkNotificationRead(id) {
			writeJSONError(w, "notification not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.Notifications.MarkRead(r.Context(), id); err != nil {
		glog.Warningf("localapi: mark notification %s read: %v", id, err)
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshNotificationsHandler reloads the notification history.
func (h *Handler) RefreshNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Notifications == nil {
		writeJSONError(w, "notification service is not configured", http.StatusNotImplemented)
		return
	}
	list, err := h.Notifications.Fetch(r.Context(), h.Client.Identity().UserID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

// GetConversationMessagesHandler returns the messages of a conversation.
// With refresh=true the history is reloaded from the REST service first.
func (h *Handler) GetConversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["conversationID"]

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if !refresh {
		messages := h.Client.State().Messages(conversationID)
		if messages == nil {
			messages = []imtypes.Message{}
		}
		writeJSONResponse(w, http.StatusOK, messages)
		return
	}
	if h.Conversations == nil {
		writeJSONError(w, "conversation service is not configured", http.StatusNotImplemented)
		return
	}

	limit := services.DefaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	messages, err := h.Conversations.Messages(r.Context(), conversationID, limit)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// CreateConversationHandler opens a conversation between the local user and
// the given members.
func (h *Handler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	if h.Conversations == nil {
		writeJSONError(w, "conversation service is not configured", http.StatusNotImplemented)
		return
	}
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(req.MemberIDs) == 0 {
		writeJSONError(w, "member_ids is required", http.StatusBadRequest)
		return
	}
	conv, err := h.Conversations.Create(r.Context(), req.MemberIDs...)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSONResponse(w, http.StatusCreated, conv)
}

// writeJSONResponse writes data as a JSON body with statusCode.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			glog.Errorf("localapi: encode response: %v", err)
		}
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}
