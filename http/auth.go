package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const ErrTypeUnauthorized = "unauthorized"

// VerifyAuthToken returns a websocket handshake that rejects clients not
// presenting the given bearer token. Every client is accepted when token is
// empty.
func VerifyAuthToken(token string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag("client_id", GetClientIDFromHTTPRequest(r)).Error(err)
			return err
		}
		return nil
	}
}

// VerifyAuthTokenHandler wraps next with a bearer token check.
func VerifyAuthTokenHandler(token string, next http.HandlerFunc) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifyToken(token, r); err != nil {
			logs.WithTag("client_id", GetClientIDFromHTTPRequest(r)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// AuthMiddleware is the router middleware form of VerifyAuthTokenHandler.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(VerifyAuthTokenHandler(token, next.ServeHTTP))
	}
}

func verifyToken(token string, r *http.Request) error {
	if token == "" {
		return nil
	}

	got := GetTokenFromHTTPRequest(r)
	if got == "" {
		return errors.New("missing auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("remote_addr", r.RemoteAddr)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return errors.New("invalid auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("remote_addr", r.RemoteAddr)
	}
	return nil
}
