package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"im-sync/internal/models"
)

// MessageRepository stores archived chat messages.
type MessageRepository interface {
	// Save inserts message, or updates the row with the same server id or,
	// failing that, the same client id. This is how a server echo replaces
	// the provisional row of a sent message.
	Save(ctx context.Context, message *models.ArchivedMessage) error
	// ListByConversation returns a conversation's messages, oldest first.
	ListByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]*models.ArchivedMessage, error)
	ListConversations(ctx context.Context) ([]string, error)
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a gorm backed MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Save(ctx context.Context, message *models.ArchivedMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findMessage(tx, message)
		if err != nil {
			return err
		}
		if existing == nil {
			return tx.Create(message).Error
		}
		message.ID = existing.ID
		message.CreatedAt = existing.CreatedAt
		if message.ServerID == "" {
			message.ServerID = existing.ServerID
		}
		if message.ClientID == "" {
			message.ClientID = existing.ClientID
		}
		return tx.Save(message).Error
	})
}

func findMessage(tx *gorm.DB, message *models.ArchivedMessage) (*models.ArchivedMessage, error) {
	var existing models.ArchivedMessage
	var err error
	switch {
	case message.ServerID != "":
		err = tx.Where("conversation_id = ? AND server_id = ?", message.ConversationID, message.ServerID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) && message.ClientID != "" {
			err = tx.Where("conversation_id = ? AND client_id = ? AND server_id = ''", message.ConversationID, message.ClientID).First(&existing).Error
		}
	case message.ClientID != "":
		err = tx.Where("conversation_id = ? AND client_id = ?", message.ConversationID, message.ClientID).First(&existing).Error
	default:
		return nil, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *gormMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]*models.ArchivedMessage, error) {
	var messages []*models.ArchivedMessage
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("sent_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *gormMessageRepository) ListConversations(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ArchivedMessage{}).
		Distinct("conversation_id").Order("conversation_id").Pluck("conversation_id", &ids).Error
	return ids, err
}
