package services

import (
	"context"
	"net/url"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"im-sync/internal/imtypes"
	"im-sync/internal/state"
)

// NotificationService loads notification history and marks notifications
// read.
type NotificationService interface {
	// Fetch replaces the local notification list with the user's history,
	// newest first.
	Fetch(ctx context.Context, userID string) ([]imtypes.Notification, error)
	// MarkRead flags the notification read on the server, then locally.
	MarkRead(ctx context.Context, id imtypes.ID) error
}

type notificationService struct {
	api   *APIClient
	state *state.LocalState
}

// NewNotificationService creates a NotificationService writing to st.
func NewNotificationService(api *APIClient, st *state.LocalState) NotificationService {
	return &notificationService{api: api, state: st}
}

func (s *notificationService) Fetch(ctx context.Context, userID string) ([]imtypes.Notification, error) {
	var list []imtypes.Notification
	q := url.Values{"user_id": []string{userID}}
	if err := s.api.do(ctx, "GET", "/notifications", q, nil, &list); err != nil {
		return nil, errors.WithMessage(err, "fetch notifications")
	}
	s.state.ReplaceNotifications(list)
	return list, nil
}

// MarkRead updates local state only after the server accepted the change,
// so a failed request leaves the notification unread.
func (s *notificationService) MarkRead(ctx context.Context, id imtypes.ID) error {
	if err := s.api.do(ctx, "PATCH", "/notifications/"+url.PathEscape(id.String())+"/read", nil, nil, nil); err != nil {
		glog.Warningf("services: mark notification %s read: %v", id, err)
		return errors.WithMessage(err, "mark notification read")
	}
	s.state.MarkNotificationRead(id)
	return nil
}
