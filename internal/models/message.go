package models

import (
	"time"

	"im-sync/internal/imtypes"
)

// ArchivedMessage is a chat message kept in the local archive. A provisional
// message is stored under its client id and gets its server id once the
// server echo arrives.
type ArchivedMessage struct {
	BaseModel
	ServerID       string    `gorm:"type:varchar(64);index" json:"serverId,omitempty"`
	ClientID       string    `gorm:"type:varchar(128);index" json:"clientId,omitempty"`
	ConversationID string    `gorm:"type:varchar(255);index;not null" json:"conversationId"`
	SenderID       string    `gorm:"type:varchar(255);not null" json:"senderId"`
	ReceiverID     string    `gorm:"type:varchar(255)" json:"receiverId,omitempty"`
	Type           string    `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	Content        string    `gorm:"type:text" json:"content"`
	Status         string    `gorm:"type:varchar(20);default:'sent'" json:"status"`
	SentAt         time.Time `gorm:"index;not null" json:"sentAt"`
}

// TableName specifies the table name for ArchivedMessage.
func (ArchivedMessage) TableName() string {
	return "archived_messages"
}

// NewArchivedMessage converts a synced message to its archive row.
func NewArchivedMessage(conversationID string, m imtypes.Message) *ArchivedMessage {
	sentAt := m.CreatedAt.Time()
	if m.CreatedAt == 0 {
		sentAt = time.Now()
	}
	msgType := string(m.MsgType)
	if msgType == "" {
		msgType = string(imtypes.TextMessageType)
	}
	return &ArchivedMessage{
		ServerID:       m.ID.String(),
		ClientID:       m.ClientID,
		ConversationID: conversationID,
		SenderID:       m.From,
		ReceiverID:     m.To,
		Type:           msgType,
		Content:        m.Text,
		Status:         string(m.Status),
		SentAt:         sentAt,
	}
}

// Message converts the row back to a synced message.
func (a *ArchivedMessage) Message() imtypes.Message {
	return imtypes.Message{
		ID:        imtypes.ID(a.ServerID),
		ClientID:  a.ClientID,
		From:      a.SenderID,
		To:        a.ReceiverID,
		ChatID:    a.ConversationID,
		Text:      a.Content,
		MsgType:   imtypes.MessageType(a.Type),
		CreatedAt: imtypes.FromTime(a.SentAt),
		Status:    imtypes.MessageStatus(a.Status),
	}
}
