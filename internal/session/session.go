package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no session token")

// Session answers whether a viewer is logged in.
type Session interface {
	LoggedIn() bool
}

// Anonymous is the session of a viewer without a valid token.
var Anonymous Session = anonymous{}

type anonymous struct{}

func (anonymous) LoggedIn() bool { return false }

// Claims are the fields the remote API puts in its access tokens.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// User is a session backed by a verified access token.
type User struct {
	Token  string
	Claims Claims
}

func (u *User) LoggedIn() bool { return u != nil && u.Token != "" }

func (u *User) ID() string { return fmt.Sprintf("%d", u.Claims.UserID) }

// FromToken verifies an HS256 token issued by the remote API.
func FromToken(token string, secret []byte) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid session token: missing user_id")
	}
	return &User{Token: token, Claims: claims}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
