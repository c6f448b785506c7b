package services

import (
	"context"

	"github.com/pkg/errors"
)

// PushTokenService registers device push tokens with the notification
// backend.
type PushTokenService interface {
	Register(ctx context.Context, userID, token, platform string) error
}

type deviceToken struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type pushTokenService struct {
	api *APIClient
}

// NewPushTokenService creates a PushTokenService.
func NewPushTokenService(api *APIClient) PushTokenService {
	return &pushTokenService{api: api}
}

func (s *pushTokenService) Register(ctx context.Context, userID, token, platform string) error {
	if userID == "" || token == "" {
		return errors.New("register push token: user id and token are required")
	}
	if platform == "" {
		platform = "web"
	}
	if err := s.api.do(ctx, "POST", "/tokens", nil, deviceToken{UserID: userID, Token: token, Platform: platform}, nil); err != nil {
		return errors.WithMessage(err, "register push token")
	}
	return nil
}
