package services

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"im-sync/internal/auth"
	"im-sync/internal/imtypes"
)

// SessionKey is the token store key of the login token.
const SessionKey = "session"

// User is the account returned by the auth endpoints.
type User struct {
	ID          imtypes.ID `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
}

// Session is a successful login or registration.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterInput holds the fields of a registration.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthService logs the local user in and out and keeps the token.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, in RegisterInput) (*Session, error)
	// Restore loads the stored token, if any, and uses it for API calls.
	Restore(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

type authService struct {
	api   *APIClient
	store auth.TokenStore
}

// NewAuthService creates an AuthService that persists tokens in store.
func NewAuthService(api *APIClient, store auth.TokenStore) AuthService {
	return &authService{api: api, store: store}
}

func (s *authService) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	if err := s.api.do(ctx, "POST", "/auth/login", nil, loginRequest{Email: email, Password: password}, &session); err != nil {
		return nil, errors.WithMessage(err, "login")
	}
	return s.keep(ctx, &session)
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	var session Session
	if err := s.api.do(ctx, "POST", "/auth/register", nil, in, &session); err != nil {
		return nil, errors.WithMessage(err, "register")
	}
	return s.keep(ctx, &session)
}

func (s *authService) keep(ctx context.Context, session *Session) (*Session, error) {
	if session.Token == "" {
		return nil, errors.New("auth response carries no token")
	}
	if err := s.store.Save(ctx, SessionKey, session.Token); err != nil {
		return nil, errors.Wrap(err, "store token")
	}
	s.api.SetToken(session.Token)
	glog.Infof("services: signed in as %s (%s)", session.User.Username, session.User.ID)
	return session, nil
}

func (s *authService) Restore(ctx context.Context) (string, error) {
	token, err := s.store.Load(ctx, SessionKey)
	if err != nil {
		return "", err
	}
	s.api.SetToken(token)
	return token, nil
}

func (s *authService) Logout(ctx context.Context) error {
	s.api.SetToken("")
	if err := s.store.Delete(ctx, SessionKey); err != nil {
		return errors.Wrap(err, "forget token")
	}
	return nil
}
