package models

import (
	"encoding/json"
	"time"

	"im-sync/internal/imtypes"
)

// ArchivedNotification is a notification kept in the local archive.
type ArchivedNotification struct {
	BaseModel
	ServerID   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"serverId"`
	UserID     string          `gorm:"type:varchar(255);index" json:"userId"`
	Title      string          `gorm:"type:varchar(255)" json:"title"`
	Body       string          `gorm:"type:text" json:"body"`
	DataRaw    json.RawMessage `gorm:"type:text" json:"data,omitempty"`
	IsRead     bool            `gorm:"default:false" json:"isRead"`
	ReceivedAt time.Time       `gorm:"index" json:"receivedAt"`
}

// TableName specifies the table name for ArchivedNotification.
func (ArchivedNotification) TableName() string {
	return "archived_notifications"
}

// NewArchivedNotification converts a synced notification to its archive row.
func NewArchivedNotification(n imtypes.Notification) *ArchivedNotification {
	receivedAt := n.CreatedAt.Time()
	if n.CreatedAt == 0 {
		receivedAt = time.Now()
	}
	return &ArchivedNotification{
		ServerID:   n.ID.String(),
		UserID:     n.UserID,
		Title:      n.Title,
		Body:       n.Body,
		DataRaw:    n.Data,
		IsRead:     n.IsRead,
		ReceivedAt: receivedAt,
	}
}

// Notification converts the row back to a synced notification.
func (a *ArchivedNotification) Notification() imtypes.Notification {
	return imtypes.Notification{
		ID:        imtypes.ID(a.ServerID),
		UserID:    a.UserID,
		Title:     a.Title,
		Body:      a.Body,
		Data:      a.DataRaw,
		IsRead:    a.IsRead,
		CreatedAt: imtypes.FromTime(a.ReceivedAt),
	}
}
