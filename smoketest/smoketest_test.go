package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	qfhttp "github.com/aukilabs/quadfield/http"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	qfwebsocket "github.com/aukilabs/quadfield/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type testServer struct {
	AuthToken string
	Identity  *models.Identity
	Fields    *models.FieldStore
}

func (s testServer) start(t *testing.T) *httptest.Server {
	if s.Fields == nil {
		s.Fields = &models.FieldStore{ServerID: "ted"}
	}

	server := httptest.NewServer(websocket.Server{
		Handshake: qfhttp.VerifyAuthToken(s.AuthToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			h := &qfwebsocket.RealtimeHandler{
				ClientSyncClockInterval: time.Millisecond * 50,
				ClientIdleTimeout:       time.Minute,
				Fields:                  s.Fields,
				FieldDefaults: models.FieldConfig{
					Size:           quadtree.Vector3f{X: 10, Y: 10},
					Capacity:       4,
					MaxDepth:       quadtree.DefaultMaxDepth,
					BoundaryPolicy: quadtree.BoundaryShared,
				},
				Identity: s.Identity,
			}
			defer h.Close()

			qfwebsocket.Handle(context.Background(), conn, h)
		},
	})
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	t.Run("unsigned tree", func(t *testing.T) {
		fields := &models.FieldStore{ServerID: "ted"}
		server := testServer{Fields: fields}.start(t)

		res, err := Run(context.Background(), Options{
			Endpoint: server.URL,
			Timeout:  time.Second * 2,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Empty(t, res.Error)
		require.Equal(t, server.URL, res.Endpoint)
		require.Equal(t, "tedx1", res.FieldID)
		require.Equal(t, uint32(1), res.EntityID)
		require.False(t, res.TreeSigned)
		require.Greater(t, res.LatencyMilliSec, float64(0))

		require.Eventually(t, func() bool {
			return fields.Count() == 0
		}, time.Second, time.Millisecond*10)
	})

	t.Run("signed tree", func(t *testing.T) {
		identity, err := models.NewIdentity(testPrivateKey)
		require.NoError(t, err)

		server := testServer{Identity: identity}.start(t)

		res, err := Run(context.Background(), Options{
			Endpoint:          server.URL,
			Timeout:           time.Second * 2,
			RequireSignedTree: true,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		require.True(t, res.TreeSigned)
	})

	t.Run("tree signature required", func(t *testing.T) {
		server := testServer{}.start(t)

		res, err := Run(context.Background(), Options{
			Endpoint:          server.URL,
			Timeout:           time.Second * 2,
			RequireSignedTree: true,
		})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeCheckFailed))
		require.False(t, res.Success)
		require.NotEmpty(t, res.Error)
	})

	t.Run("auth token", func(t *testing.T) {
		server := testServer{AuthToken: "secret"}.start(t)

		_, err := Run(context.Background(), Options{
			Endpoint: server.URL,
			Timeout:  time.Second * 2,
		})
		require.Error(t, err)

		res, err := Run(context.Background(), Options{
			Endpoint:  server.URL,
			AuthToken: "secret",
			Timeout:   time.Second * 2,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
	})

	t.Run("error response", func(t *testing.T) {
		fields := &models.FieldStore{ServerID: "ted", MaxFields: 1}
		_, err := fields.Create(context.Background(), models.FieldConfig{
			Size:     quadtree.Vector3f{X: 1, Y: 1},
			Capacity: 1,
		})
		require.NoError(t, err)

		server := testServer{Fields: fields}.start(t)

		res, err := Run(context.Background(), Options{
			Endpoint: server.URL,
			Timeout:  time.Second * 2,
		})
		require.Error(t, err)
		require.False(t, res.Success)
		require.Empty(t, res.FieldID)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := Run(context.Background(), Options{
			Endpoint: "ftp://localhost",
		})
		require.Error(t, err)
	})
}

func TestWebsocketURLs(t *testing.T) {
	tests := []struct {
		endpoint string
		url      string
		origin   string
	}{
		{endpoint: "http://localhost:4000", url: "ws://localhost:4000", origin: "http://localhost:4000"},
		{endpoint: "https://quadfield.dev/", url: "wss://quadfield.dev/", origin: "https://quadfield.dev"},
		{endpoint: "ws://localhost:4000/", url: "ws://localhost:4000/", origin: "http://localhost:4000"},
		{endpoint: "wss://quadfield.dev", url: "wss://quadfield.dev", origin: "https://quadfield.dev"},
	}

	for _, test := range tests {
		t.Run(test.endpoint, func(t *testing.T) {
			u, origin, err := websocketURLs(test.endpoint)
			require.NoError(t, err)
			require.Equal(t, test.url, u)
			require.Equal(t, test.origin, origin)
		})
	}
}

func TestHandleSmokeTest(t *testing.T) {
	server := testServer{}.start(t)

	handler := HandleSmokeTest(context.Background(), Options{
		Endpoint: server.URL,
		Timeout:  time.Second * 2,
	})

	t.Run("self", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var res Results
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Equal(t, server.URL, res.FromEndpoint)
		require.Len(t, res.Results, 1)
		require.True(t, res.Results[0].Success)
	})

	t.Run("endpoints", func(t *testing.T) {
		other := testServer{AuthToken: "other"}.start(t)

		body, err := json.Marshal(Request{
			Endpoints: []string{server.URL, other.URL},
		})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)

		var res Results
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Len(t, res.Results, 2)
		require.True(t, res.Results[0].Success)
		require.Equal(t, other.URL, res.Results[1].Endpoint)
		require.False(t, res.Results[1].Success)
		require.NotEmpty(t, res.Results[1].Error)
	})

	t.Run("bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader([]byte("{"))))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
