package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTokenFromHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		token  string
	}{
		{name: "bearer header", header: "Bearer secret", url: "/", token: "secret"},
		{name: "lower case scheme", header: "bearer secret", url: "/", token: "secret"},
		{name: "other scheme", header: "Basic secret", url: "/?token=query", token: ""},
		{name: "query", url: "/?token=query", token: "query"},
		{name: "none", url: "/", token: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, test.url, nil)
			if test.header != "" {
				r.Header.Set(HeaderAuthorization, test.header)
			}
			require.Equal(t, test.token, GetTokenFromHTTPRequest(r))
		})
	}
}

func TestGetClientIDFromHTTPRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?client_id=query", nil)
	require.Equal(t, "query", GetClientIDFromHTTPRequest(r))

	r.Header.Set(HeaderClientID, "header")
	require.Equal(t, "header", GetClientIDFromHTTPRequest(r))
}

func TestVerifyAuthTokenHandler(t *testing.T) {
	next := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}

	tests := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{name: "auth disabled", status: http.StatusTeapot},
		{name: "valid token", token: "secret", header: "Bearer secret", status: http.StatusTeapot},
		{name: "invalid token", token: "secret", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "missing token", token: "secret", status: http.StatusUnauthorized},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if test.header != "" {
				r.Header.Set(HeaderAuthorization, test.header)
			}
			w := httptest.NewRecorder()

			VerifyAuthTokenHandler(test.token, next)(w, r)
			require.Equal(t, test.status, w.Code)
		})
	}
}

func TestVerifyAuthToken(t *testing.T) {
	handshake := VerifyAuthToken("secret")

	r := httptest.NewRequest(http.MethodGet, "/?token=secret", nil)
	require.NoError(t, handshake(nil, r))

	r = httptest.NewRequest(http.MethodGet, "/?token=nope", nil)
	require.Error(t, handshake(nil, r))
}
