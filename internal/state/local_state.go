// Package state holds the client side view of conversations, presence,
// typing indicators and notifications built from the realtime event stream.
package state

import (
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"im-sync/internal/imtypes"
)

// ChangeKind identifies what a Change touched.
type ChangeKind string

const (
	MessageAppended       ChangeKind = "message_appended"
	ConversationReplaced  ChangeKind = "conversation_replaced"
	TypingChanged         ChangeKind = "typing_changed"
	PresenceChanged       ChangeKind = "presence_changed"
	NotificationAdded     ChangeKind = "notification_added"
	NotificationRead      ChangeKind = "notification_read"
	NotificationsReplaced ChangeKind = "notifications_replaced"
	ServerError           ChangeKind = "server_error"
	ErrorCleared          ChangeKind = "error_cleared"
	Cleared               ChangeKind = "cleared"
)

// Change describes a single mutation of LocalState.
type Change struct {
	Kind           ChangeKind            `json:"kind"`
	ConversationID string                `json:"conversationId,omitempty"`
	Message        *imtypes.Message      `json:"message,omitempty"`
	Notification   *imtypes.Notification `json:"notification,omitempty"`
	UserID         string                `json:"userId,omitempty"`
	Active         bool                  `json:"active,omitempty"` // typing / online flag after the change
	Error          string                `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of LocalState.
type Snapshot struct {
	Identity      string                       `json:"identity"`
	Conversations map[string][]imtypes.Message `json:"conversations"`
	Online        []string                     `json:"online"`
	Typing        []string                     `json:"typing"`
	Notifications []imtypes.Notification       `json:"notifications"`
	UnreadCount   int                          `json:"unreadCount"`
	LastError     string                       `json:"lastError,omitempty"`
}

// LocalState is the merged, ordered local view of the event stream. It
// implements imtypes.EventHandler. Subscribers are called synchronously after
// the mutation, outside the state lock, in the order mutations happen:
// orderMu covers each mutation together with its publish, so changes from the
// dispatch path and from REST callers are never delivered out of order.
// Subscribers may read state but must not mutate it.
type LocalState struct {
	orderMu sync.Mutex

	mu            sync.RWMutex
	identity      string
	conversations map[string][]imtypes.Message
	seen          map[string]map[imtypes.ID]struct{} // server ids per conversation
	online        map[string]struct{}
	typing        map[string]struct{}
	notifications []imtypes.Notification // newest first
	lastError     string

	subMu       sync.RWMutex
	subscribers map[string]func(Change)
}

var _ imtypes.EventHandler = (*LocalState)(nil)

// NewLocalState creates an empty LocalState for identity.
func NewLocalState(identity string) *LocalState {
	s := &LocalState{subscribers: make(map[string]func(Change))}
	s.reset(identity)
	return s
}

func (s *LocalState) reset(identity string) {
	s.identity = identity
	s.conversations = make(map[string][]imtypes.Message)
	s.seen = make(map[string]map[imtypes.ID]struct{})
	s.online = make(map[string]struct{})
	s.typing = make(map[string]struct{})
	s.notifications = nil
	s.lastError = ""
}

// Reset drops everything and switches to identity, as on logout or a change
// of user.
func (s *LocalState) Reset(identity string) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	s.reset(identity)
	s.mu.Unlock()
	s.publish(Change{Kind: Cleared})
}

// SetIdentity sets the local user without clearing state.
func (s *LocalState) SetIdentity(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// Identity returns the local user.
func (s *LocalState) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Subscribe registers fn for every future Change and returns a function that
// removes it. fn must not block.
func (s *LocalState) Subscribe(fn func(Change)) (unsubscribe func()) {
	id := uuid.NewString()
	s.subMu.Lock()
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *LocalState) publish(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// OnMessage appends an inbound message to its conversation. A message whose
// server id was already seen in that conversation is dropped, as is a message
// between two other users.
func (s *LocalState) OnMessage(e imtypes.MessageEvent) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	m := e.Message
	s.mu.Lock()
	if m.From != "" && m.To != "" && s.identity != "" && m.From != s.identity && m.To != s.identity {
		s.mu.Unlock()
		glog.V(5).Infof("state: ignore message %s between %s and %s", m.ID, m.From, m.To)
		return
	}
	key := m.ConversationKey()
	if m.ID != "" {
		ids, ok := s.seen[key]
		if !ok {
			ids = make(map[imtypes.ID]struct{})
			s.seen[key] = ids
		}
		if _, dup := ids[m.ID]; dup {
			s.mu.Unlock()
			glog.V(5).Infof("state: duplicate message %s in %s", m.ID, key)
			return
		}
		ids[m.ID] = struct{}{}
	}
	s.conversations[key] = append(s.conversations[key], m)
	s.mu.Unlock()

	s.publish(Change{Kind: MessageAppended, ConversationID: key, Message: &m})
}

// AppendProvisional appends a locally synthesized message at the end of its
// conversation.
func (s *LocalState) AppendProvisional(m imtypes.Message) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	m.Status = imtypes.StatusSending
	key := m.ConversationKey()
	s.mu.Lock()
	s.conversations[key] = append(s.conversations[key], m)
	s.mu.Unlock()

	s.publish(Change{Kind: MessageAppended, ConversationID: key, Message: &m})
}

// ReplaceConversation replaces a conversation with history loaded over REST.
func (s *LocalState) ReplaceConversation(conversationID string, messages []imtypes.Message) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	ids := make(map[imtypes.ID]struct{}, len(messages))
	list := make([]imtypes.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != "" {
			if _, dup := ids[m.ID]; dup {
				continue
			}
			ids[m.ID] = struct{}{}
		}
		list = append(list, m)
	}
	s.mu.Lock()
	s.conversations[conversationID] = list
	s.seen[conversationID] = ids
	s.mu.Unlock()

	s.publish(Change{Kind: ConversationReplaced, ConversationID: conversationID})
}

// OnTyping adds or removes the user from the typing set.
func (s *LocalState) OnTyping(e imtypes.TypingEvent) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	changed := toggle(s.typing, e.UserID, e.IsTyping)
	s.mu.Unlock()
	if changed {
		s.publish(Change{Kind: TypingChanged, UserID: e.UserID, ConversationID: e.ConversationID, Active: e.IsTyping})
	}
}

// OnPresence adds or removes the user from the online set.
func (s *LocalState) OnPresence(e imtypes.PresenceEvent) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	online := e.Status == imtypes.PresenceOnline
	s.mu.Lock()
	changed := toggle(s.online, e.UserID, online)
	s.mu.Unlock()
	if changed {
		s.publish(Change{Kind: PresenceChanged, UserID: e.UserID, Active: online})
	}
}

func toggle(set map[string]struct{}, key string, on bool) bool {
	_, present := set[key]
	if on == present {
		return false
	}
	if on {
		set[key] = struct{}{}
	} else {
		delete(set, key)
	}
	return true
}

// OnNotification prepends a notification. A notification with an id that is
// already present replaces the old entry in place.
func (s *LocalState) OnNotification(e imtypes.NotificationEvent) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	n := e.Notification
	s.mu.Lock()
	if n.ID != "" {
		for i := range s.notifications {
			if s.notifications[i].ID == n.ID {
				s.notifications[i] = n
				s.mu.Unlock()
				s.publish(Change{Kind: NotificationAdded, Notification: &n})
				return
			}
		}
	}
	s.notifications = append([]imtypes.Notification{n}, s.notifications...)
	s.mu.Unlock()

	s.publish(Change{Kind: NotificationAdded, Notification: &n})
}

// OnServerError records the error for display. It never touches the
// connection.
func (s *LocalState) OnServerError(e imtypes.ServerErrorEvent) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	s.lastError = e.Message
	s.mu.Unlock()
	s.publish(Change{Kind: ServerError, Error: e.Message})
}

// ClearError dismisses the last server error.
func (s *LocalState) ClearError() {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	had := s.lastError != ""
	s.lastError = ""
	s.mu.Unlock()
	if had {
		s.publish(Change{Kind: ErrorCleared})
	}
}

// ReplaceNotifications replaces the list with history fetched over REST,
// which the service returns newest first.
func (s *LocalState) ReplaceNotifications(list []imtypes.Notification) {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	cp := make([]imtypes.Notification, len(list))
	copy(cp, list)
	s.mu.Lock()
	s.notifications = cp
	s.mu.Unlock()
	s.publish(Change{Kind: NotificationsReplaced})
}

// MarkNotificationRead flags a notification as read. It reports whether the
// notification existed and was unread.
func (s *LocalState) MarkNotificationRead(id imtypes.ID) bool {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	s.mu.Lock()
	var marked *imtypes.Notification
	for i := range s.notifications {
		if s.notifications[i].ID == id && !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			n := s.notifications[i]
			marked = &n
			break
		}
	}
	s.mu.Unlock()
	if marked == nil {
		return false
	}
	s.publish(Change{Kind: NotificationRead, Notification: marked})
	return true
}

// Messages returns a copy of the conversation's messages in insertion order.
func (s *LocalState) Messages(conversationID string) []imtypes.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.conversations[conversationID]
	out := make([]imtypes.Message, len(src))
	copy(out, src)
	return out
}

// MessageCount returns the number of messages across all conversations.
func (s *LocalState) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.conversations {
		n += len(list)
	}
	return n
}

// IsOnline reports whether userID is in the online set.
func (s *LocalState) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// IsTyping reports whether userID is in the typing set.
func (s *LocalState) IsTyping(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.typing[userID]
	return ok
}

// Notifications returns a copy of the notifications, newest first.
func (s *LocalState) Notifications() []imtypes.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]imtypes.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// UnreadCount returns the number of unread notifications.
func (s *LocalState) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unread(s.notifications)
}

func unread(list []imtypes.Notification) int {
	n := 0
	for _, x := range list {
		if !x.IsRead {
			n++
		}
	}
	return n
}

// LastError returns the last server reported error, if any.
func (s *LocalState) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Snapshot returns a deep enough copy of the state for readers.
func (s *LocalState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Identity:      s.identity,
		Conversations: make(map[string][]imtypes.Message, len(s.conversations)),
		Online:        sortedKeys(s.online),
		Typing:        sortedKeys(s.typing),
		Notifications: make([]imtypes.Notification, len(s.notifications)),
		UnreadCount:   unread(s.notifications),
		LastError:     s.lastError,
	}
	for k, v := range s.conversations {
		cp := make([]imtypes.Message, len(v))
		copy(cp, v)
		snap.Conversations[k] = cp
	}
	copy(snap.Notifications, s.notifications)
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
