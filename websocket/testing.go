package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	qfhttp "github.com/aukilabs/quadfield/http"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Creates a testing environement to unit test handlers.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		close()

		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
	}
}

// The returned close func waits for the connection handlers to return.
func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var handlers sync.WaitGroup

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			handlers.Add(1)
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer handlers.Done()
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set("X-Forwarded-for", "192.0.0.0")
		config.Header.Set(qfhttp.HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
		handlers.Wait()
	}
}

// testFieldDefaults is a 4x4 field centered on the origin that subdivides
// after one point.
var testFieldDefaults = models.FieldConfig{
	Size:           quadtree.Vector3f{X: 4, Y: 4},
	Capacity:       1,
	MaxDepth:       quadtree.DefaultMaxDepth,
	BoundaryPolicy: quadtree.BoundaryShared,
}

func newTestHandler(opts ...func(*RealtimeHandler)) func() Handler {
	fields := &models.FieldStore{
		ServerID: "ted",
	}

	return func() Handler {
		rh := &RealtimeHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       time.Minute,
			Fields:                  fields,
			FieldDefaults:           testFieldDefaults,
		}
		for _, opt := range opts {
			opt(rh)
		}

		var h Handler = rh
		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://quadfield-test.com")
		return h
	}
}
