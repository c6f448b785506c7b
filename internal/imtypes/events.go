package imtypes

// EventKind is the declared "type" of an inbound frame.
type EventKind string

const (
	KindMessage      EventKind = "message"
	KindNewMessage   EventKind = "new_message"
	KindTyping       EventKind = "typing_indicator"
	KindPresence     EventKind = "presence_update"
	KindNotification EventKind = "notification"
	KindServerError  EventKind = "error"
)

// EventHandler receives decoded inbound events. Every event kind has its own
// method, so adding a kind breaks every handler until it handles it too.
type EventHandler interface {
	OnMessage(MessageEvent)
	OnTyping(TypingEvent)
	OnPresence(PresenceEvent)
	OnNotification(NotificationEvent)
	OnServerError(ServerErrorEvent)
}

// InboundEvent is the closed set of events a connection can deliver.
type InboundEvent interface {
	Kind() EventKind
	Accept(h EventHandler)
}

// MessageEvent carries one chat message.
type MessageEvent struct {
	Message Message
}

// TypingEvent toggles a user's typing flag.
type TypingEvent struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

// PresenceEvent reports a user going online or offline.
type PresenceEvent struct {
	UserID string         `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

// NotificationEvent carries one notification.
type NotificationEvent struct {
	Notification Notification
}

// ServerErrorEvent is an error reported by the server inside a valid frame.
type ServerErrorEvent struct {
	FrameKind EventKind
	Message   string
}

func (MessageEvent) Kind() EventKind      { return KindMessage }
func (TypingEvent) Kind() EventKind       { return KindTyping }
func (PresenceEvent) Kind() EventKind     { return KindPresence }
func (NotificationEvent) Kind() EventKind { return KindNotification }
func (ServerErrorEvent) Kind() EventKind  { return KindServerError }

func (e MessageEvent) Accept(h EventHandler)      { h.OnMessage(e) }
func (e TypingEvent) Accept(h EventHandler)       { h.OnTyping(e) }
func (e PresenceEvent) Accept(h EventHandler)     { h.OnPresence(e) }
func (e NotificationEvent) Accept(h EventHandler) { h.OnNotification(e) }
func (e ServerErrorEvent) Accept(h EventHandler)  { h.OnServerError(e) }
