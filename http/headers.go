package http

import (
	"net/http"
	"strings"
)

const (
	// The header that identifies a client across connections.
	HeaderClientID = "X-Quadfield-Client-Id"

	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"

	bearerPrefix = "Bearer "
)

// GetTokenFromHTTPRequest returns the bearer token of the given request. The
// token query parameter is used when no authorization header is set, since
// browsers can't set headers on websocket handshakes.
func GetTokenFromHTTPRequest(r *http.Request) string {
	if auth := r.Header.Get(HeaderAuthorization); auth != "" {
		if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(auth[len(bearerPrefix):])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// GetClientIDFromHTTPRequest returns the client id of the given request.
func GetClientIDFromHTTPRequest(r *http.Request) string {
	if id := r.Header.Get(HeaderClientID); id != "" {
		return id
	}
	return r.URL.Query().Get("client_id")
}
