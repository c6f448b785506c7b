package imtypes

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// inboundFrame is the envelope of every server frame.
type inboundFrame struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// newMessagePayload is the payload of a new_message frame.
type newMessagePayload struct {
	ID             ID          `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
	CreatedAt      Timestamp   `json:"created_at"`
}

// SplitFrames splits a text frame into the JSON values it contains. Hubs that
// batch queued messages write several newline separated values into a single
// frame. Any decoding error rejects the whole frame.
func SplitFrames(raw []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var values []json.RawMessage
	for {
		var v json.RawMessage
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, &ParseError{Raw: raw, Err: errors.New("empty frame")}
	}
	return values, nil
}

// DecodeInbound decodes a single JSON value into an InboundEvent.
//
// A frame with an error field decodes to a ServerErrorEvent whatever its type.
// Frames of an unknown kind decode to (nil, nil) and are meant to be ignored.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if f.Error != "" {
		return ServerErrorEvent{FrameKind: f.Type, Message: f.Error}, nil
	}

	// Some servers send the fields flat next to "type".
	body := []byte(f.Payload)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		body = raw
	}

	switch f.Type {
	case KindMessage:
		var m Message
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, &ParseError{Raw: raw, Err: errors.Wrap(err, "message")}
		}
		m.Status = serverStatus(m.Status)
		return MessageEvent{Message: m}, nil

	case KindNewMessage:
		var p newMessagePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, &ParseError{Raw: raw, Err: errors.Wrap(err, "new_message")}
		}
		return MessageEvent{Message: Message{
			ID:        p.ID,
			From:      p.SenderID,
			ChatID:    p.ConversationID,
			Text:      p.Content,
			MsgType:   p.MessageType,
			CreatedAt: p.CreatedAt,
			Status:    StatusSent,
		}}, nil

	case KindTyping:
		var e TypingEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, &ParseError{Raw: raw, Err: errors.Wrap(err, "typing_indicator")}
		}
		if e.UserID == "" {
			return nil, &ParseError{Raw: raw, Err: errors.New("typing_indicator without user_id")}
		}
		return e, nil

	case KindPresence:
		var e PresenceEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, &ParseError{Raw: raw, Err: errors.Wrap(err, "presence_update")}
		}
		if e.UserID == "" {
			return nil, &ParseError{Raw: raw, Err: errors.New("presence_update without user_id")}
		}
		if e.Status != PresenceOnline {
			e.Status = PresenceOffline
		}
		return e, nil

	case KindNotification:
		var n Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, &ParseError{Raw: raw, Err: errors.Wrap(err, "notification")}
		}
		return NotificationEvent{Notification: n}, nil

	case "":
		// The notification socket pushes bare notification objects.
		var n Notification
		if err := json.Unmarshal(raw, &n); err == nil && n.ID != "" && n.Title != "" {
			return NotificationEvent{Notification: n}, nil
		}
		return nil, nil

	default:
		return nil, nil
	}
}

// OutboundKind is the "type" of a frame written by the client.
type OutboundKind string

const (
	OutboundMessageKind OutboundKind = "message"
	OutboundTypingKind  OutboundKind = "typing"
)

// OutboundMessage is a message send request.
type OutboundMessage struct {
	Type      OutboundKind `json:"type"`
	ClientID  string       `json:"client_id"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	ChatID    string       `json:"chat_id"`
	Text      string       `json:"text"`
	MsgType   MessageType  `json:"msg_type"`
	CreatedAt Timestamp    `json:"created_at"`
}

// LocalCopy returns the provisional message shown until the server echoes it.
func (o OutboundMessage) LocalCopy() Message {
	return Message{
		ClientID:  o.ClientID,
		From:      o.From,
		To:        o.To,
		ChatID:    o.ChatID,
		Text:      o.Text,
		MsgType:   o.MsgType,
		CreatedAt: o.CreatedAt,
		Status:    StatusSending,
	}
}

// TypingPayload is the body of an outbound typing frame.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// OutboundTyping tells the server the local user started or stopped typing.
type OutboundTyping struct {
	Type    OutboundKind  `json:"type"`
	Payload TypingPayload `json:"payload"`
}

// NewTypingFrame builds an OutboundTyping for conversationID.
func NewTypingFrame(conversationID string, isTyping bool) OutboundTyping {
	return OutboundTyping{
		Type:    OutboundTypingKind,
		Payload: TypingPayload{ConversationID: conversationID, IsTyping: isTyping},
	}
}
