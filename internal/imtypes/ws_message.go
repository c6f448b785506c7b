package imtypes

import "encoding/json"

// MessageType defines the content type of a chat message.
type MessageType string

const (
	TextMessageType  MessageType = "text"
	ImageMessageType MessageType = "image"
	FileMessageType  MessageType = "file"
)

// Valid reports whether t is a known content type. Empty means text.
func (t MessageType) Valid() bool {
	switch t {
	case "", TextMessageType, ImageMessageType, FileMessageType:
		return true
	}
	return false
}

// MessageStatus is the delivery state shown next to a message.
type MessageStatus string

const (
	// StatusSending marks a provisional message that only exists locally.
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// serverStatus maps a status reported by the server onto one the client
// shows. Only the client creates sending messages.
func serverStatus(s MessageStatus) MessageStatus {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return s
	}
	return StatusSent
}

// Message is a chat message as it is held in local state.
type Message struct {
	ID        ID            `json:"id,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	From      string        `json:"from"`
	To        string        `json:"to,omitempty"`
	ChatID    string        `json:"chat_id,omitempty"`
	Text      string        `json:"text"`
	MsgType   MessageType   `json:"msg_type,omitempty"`
	CreatedAt Timestamp     `json:"created_at"`
	Status    MessageStatus `json:"status,omitempty"`
}

// ConversationKey returns the conversation the message belongs to. A server
// supplied chat id wins; otherwise the id is derived from the participants.
func (m Message) ConversationKey() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	return ConversationID(m.From, m.To)
}

// Provisional reports whether the message has only been synthesized locally.
func (m Message) Provisional() bool {
	return m.Status == StatusSending
}

// Notification is a user notification as delivered by the notification service.
type Notification struct {
	ID        ID              `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt Timestamp       `json:"created_at"`
}

// PresenceStatus is the online state of a remote identity.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)
