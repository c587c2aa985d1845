package gateway

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/recyclemart/stocksync/internal/obs"
)

// Handshake authentication errors. Both refuse the connection before
// any state is created.
var (
	ErrMissingToken = errors.New("gateway: missing auth token")
	ErrInvalidToken = errors.New("gateway: invalid auth token")
)

// AuthFunc validates a handshake and resolves the connecting user.
type AuthFunc func(r *http.Request) (userID string, err error)

// TokenFromRequest extracts the handshake credential: the auth query
// parameter, then the token query parameter, then a bearer header,
// first match wins.
func TokenFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("auth"); v != "" {
		return v
	}
	if v := q.Get("token"); v != "" {
		return v
	}
	h := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// TokenAuth admits handshakes carrying the shared secret. The user
// identity rides alongside the credential; anonymous connections get a
// generated id so per-user delivery still has a channel to target.
func TokenAuth(secret string) AuthFunc {
	return func(r *http.Request) (string, error) {
		tok := TokenFromRequest(r)
		if tok == "" {
			return "", ErrMissingToken
		}
		if subtle.ConstantTimeCompare([]byte(tok), []byte(secret)) != 1 {
			return "", ErrInvalidToken
		}
		return userIDFromRequest(r), nil
	}
}

// InsecureAuth admits every handshake. Dev mode only.
func InsecureAuth() AuthFunc {
	warned := false
	return func(r *http.Request) (string, error) {
		if !warned {
			obs.Logger.Warn("ws_auth_disabled")
			warned = true
		}
		return userIDFromRequest(r), nil
	}
}

func userIDFromRequest(r *http.Request) string {
	if uid := r.Header.Get("X-User-Id"); uid != "" {
		return uid
	}
	if uid := r.URL.Query().Get("user"); uid != "" {
		return uid
	}
	return uuid.NewString()
}
