// Package auth verifies bearer tokens and binds them to a user identity.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/couple-room/internal/database"
	"github.com/npezzotti/couple-room/internal/types"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"

	// DefaultTokenExpiration matches the lifetime of a login session.
	DefaultTokenExpiration = 7 * 24 * time.Hour

	TokenCookieKey = "token"
	tokenQueryKey  = "token"
)

// ErrUnauthorized is returned for a missing, malformed or expired token,
// and for a token whose user no longer exists. Other errors from
// Authenticate mean the user could not be looked up.
var ErrUnauthorized = errors.New("unauthorized")

type UserFinder interface {
	GetUserById(ctx context.Context, userId string) (database.User, error)
}

type Authenticator struct {
	signingKey []byte
	users      UserFinder
}

func NewAuthenticator(signingKey []byte, users UserFinder) *Authenticator {
	return &Authenticator{
		signingKey: signingKey,
		users:      users,
	}
}

// Authenticate verifies tokenString and resolves it to the user it was
// issued for.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (types.User, error) {
	if tokenString == "" {
		return types.User{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	userId, err := a.VerifyToken(tokenString)
	if err != nil {
		return types.User{}, err
	}

	user, err := a.users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("%w: user %q not found", ErrUnauthorized, userId)
		}
		return types.User{}, fmt.Errorf("lookup user %q: %w", userId, err)
	}

	return types.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
	}, nil
}

// VerifyToken checks the signature and expiry of tokenString and returns
// the user id it carries.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: parse token: %v", ErrUnauthorized, err)
	}

	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	// exp is optional for jwt.Parse, but not for us
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return "", fmt.Errorf("%w: missing or expired exp claim", ErrUnauthorized)
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("%w: invalid user id claim", ErrUnauthorized)
	}

	return userId, nil
}

func (a *Authenticator) IssueToken(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(a.signingKey)
}

// TokenFromRequest looks for a bearer token in the Authorization header,
// then the token query parameter (browsers cannot set headers on a
// websocket handshake), then the token cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), true
		}
	}

	if token := r.URL.Query().Get(tokenQueryKey); token != "" {
		return token, true
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil && c.Value != "" {
		return c.Value, true
	}

	return "", false
}
