package services

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"im-sync/internal/imtypes"
	"im-sync/internal/state"
)

// DefaultHistoryLimit is the page size used when none is given.
const DefaultHistoryLimit = 50

// Conversation is a conversation created over REST.
type Conversation struct {
	ID        imtypes.ID        `json:"id"`
	Type      string            `json:"type"`
	Name      *string           `json:"name,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt imtypes.Timestamp `json:"created_at,omitempty"`
}

// historyMessage is a stored message. The go-chat backend serializes its
// domain struct without tags, so both spellings are accepted.
type historyMessage struct {
	ID             imtypes.ID          `json:"id"`
	ConversationID string              `json:"conversation_id"`
	ConvIDPascal   string              `json:"ConversationID"`
	SenderID       string              `json:"sender_id"`
	SenderIDPascal string              `json:"SenderID"`
	Content        string              `json:"content"`
	MessageType    imtypes.MessageType `json:"message_type"`
	MsgTypePascal  imtypes.MessageType `json:"MessageType"`
	CreatedAt      imtypes.Timestamp   `json:"created_at"`
	CreatedPascal  imtypes.Timestamp   `json:"CreatedAt"`
}

func (h historyMessage) message(conversationID string) imtypes.Message {
	m := imtypes.Message{
		ID:        h.ID,
		From:      firstNonEmpty(h.SenderID, h.SenderIDPascal),
		ChatID:    firstNonEmpty(h.ConversationID, h.ConvIDPascal, conversationID),
		Text:      h.Content,
		MsgType:   imtypes.MessageType(firstNonEmpty(string(h.MessageType), string(h.MsgTypePascal), string(imtypes.TextMessageType))),
		CreatedAt: h.CreatedAt,
		Status:    imtypes.StatusSent,
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = h.CreatedPascal
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type messagesResponse struct {
	Messages []historyMessage `json:"messages"`
}

type createConversationRequest struct {
	Type      string   `json:"type"`
	MemberIDs []string `json:"member_ids"`
}

// ConversationService loads history and creates conversations.
type ConversationService interface {
	// Messages replaces the local conversation with its latest limit
	// messages, oldest first.
	Messages(ctx context.Context, conversationID string, limit int) ([]imtypes.Message, error)
	// Create opens a one to one conversation with the given members.
	Create(ctx context.Context, memberIDs ...string) (*Conversation, error)
}

type conversationService struct {
	api   *APIClient
	state *state.LocalState
}

// NewConversationService creates a ConversationService writing to st.
func NewConversationService(api *APIClient, st *state.LocalState) ConversationService {
	return &conversationService{api: api, state: st}
}

func (s *conversationService) Messages(ctx context.Context, conversationID string, limit int) ([]imtypes.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var resp messagesResponse
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if err := s.api.do(ctx, "GET", "/conversations/"+url.PathEscape(conversationID)+"/messages", q, nil, &resp); err != nil {
		return nil, errors.WithMessagef(err, "load messages of %s", conversationID)
	}
	msgs := make([]imtypes.Message, 0, len(resp.Messages))
	for _, h := range resp.Messages {
		msgs = append(msgs, h.message(conversationID))
	}
	s.state.ReplaceConversation(conversationID, msgs)
	return msgs, nil
}

func (s *conversationService) Create(ctx context.Context, memberIDs ...string) (*Conversation, error) {
	if len(memberIDs) == 0 {
		return nil, errors.New("create conversation: no members")
	}
	var conv Conversation
	in := createConversationRequest{Type: "one_to_one", MemberIDs: memberIDs}
	if err := s.api.do(ctx, "POST", "/conversations", nil, in, &conv); err != nil {
		return nil, errors.WithMessage(err, "create conversation")
	}
	return &conv, nil
}
