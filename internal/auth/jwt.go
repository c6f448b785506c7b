package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"im-sync/internal/imtypes"
)

// Claims are the custom claims the chat backends put into login tokens.
// im-go style servers use userId, go-chat style servers use user_id.
type Claims struct {
	UserID      imtypes.ID `json:"userId,omitempty"`
	UserIDSnake imtypes.ID `json:"user_id,omitempty"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is who the local client acts as.
type Identity struct {
	UserID    string
	Username  string
	Token     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Expired reports whether the token is past its expiry at now.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// ParseIdentity extracts the identity from token. The signature is not
// verified: the client only needs to know who it is, the server verifies.
// A token that is not a JWT is its own identity, which is how the demo
// backends use e-mail addresses as tokens.
func ParseIdentity(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, &imtypes.ConfigurationError{Field: "token", Reason: "identity token is empty"}
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{UserID: token, Username: token, Token: token}, nil
	}

	id := Identity{Token: token, Username: claims.Username}
	switch {
	case claims.UserID != "":
		id.UserID = claims.UserID.String()
	case claims.UserIDSnake != "":
		id.UserID = claims.UserIDSnake.String()
	case claims.Subject != "":
		id.UserID = claims.Subject
	case claims.Email != "":
		id.UserID = claims.Email
	default:
		id.UserID = token
	}
	if id.Username == "" {
		id.Username = id.UserID
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
