// Package smoketest checks that a quadfield server answers the realtime
// protocol end to end.
package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	qfhttp "github.com/aukilabs/quadfield/http"
	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/aukilabs/quadfield/scenario"
	"github.com/aukilabs/quadfield/simulation"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	ErrTypeErrorResponse = "smoke_test_error_response"
	ErrTypeCheckFailed   = "smoke_test_check_failed"

	// The default duration of a smoke test.
	DefaultTimeout = time.Second * 10

	// The maximum number of endpoints tested at once.
	maxConcurrentTests = 4
)

type Options struct {
	// The endpoint of the tested server. http and https schemes are
	// converted to ws and wss.
	Endpoint string

	// The token sent as a bearer token during the websocket handshake.
	AuthToken string

	UserAgent string

	// The maximum duration of the test. DefaultTimeout is used when zero.
	Timeout time.Duration

	// When true, the tree snapshot must be signed by its wallet address.
	RequireSignedTree bool
}

// Result describes the outcome of a smoke test.
type Result struct {
	Endpoint        string  `json:"endpoint"`
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	FieldID         string  `json:"field_id,omitempty"`
	EntityID        uint32  `json:"entity_id,omitempty"`
	TreeSigned      bool    `json:"tree_signed"`
	LatencyMilliSec float64 `json:"latency_ms"`
}

// Run joins a new field on the server, spawns an entity at a random position
// inside the field and checks that a nearby query at that position returns
// it. The field is left before returning.
func Run(ctx context.Context, opts Options) (Result, error) {
	res := Result{Endpoint: opts.Endpoint}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := run(ctx, opts, &res)
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	return res, nil
}

func run(ctx context.Context, opts Options, res *Result) error {
	conn, err := dial(ctx, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		join     messages.FieldJoinResponse
		position quadtree.Vector3f
		spawn    messages.EntitySpawnResponse
		nearby   messages.NearbyResponse
		tree     messages.TreeResponse
	)

	err = scenario.NewScenario(conn).
		Send(func() messages.Payload {
			return messages.FieldJoinRequest{
				Timestamp: time.Now(),
				RequestID: 1,
			}
		}).
		Receive(expect(1, messages.MsgTypeFieldJoinResponse, &join)...).
		Send(func() messages.Payload {
			region := quadtree.NewRegion(join.Field.Region.Center, join.Field.Region.Size)
			position = simulation.RandomPositions(region, 1, rng)[0]

			return messages.EntitySpawnRequest{
				Timestamp: time.Now(),
				RequestID: 2,
				Position:  position,
			}
		}).
		Receive(expect(2, messages.MsgTypeEntitySpawnResponse, &spawn)...).
		Send(func() messages.Payload {
			return messages.NearbyRequest{
				Timestamp: time.Now(),
				RequestID: 3,
				Origin:    position,
			}
		}).
		Receive(expect(3, messages.MsgTypeNearbyResponse, &nearby)...).
		Send(func() messages.Payload {
			return messages.TreeRequest{
				Timestamp: time.Now(),
				RequestID: 4,
			}
		}).
		Receive(expect(4, messages.MsgTypeTreeResponse, &tree)...).
		Send(func() messages.Payload {
			return messages.FieldLeaveRequest{
				Timestamp: time.Now(),
				RequestID: 5,
			}
		}).
		Receive(expect(5, messages.MsgTypeFieldLeaveResponse, nil)...).
		Run(ctx)
	if err != nil {
		return err
	}

	res.FieldID = join.Field.FieldID
	res.EntityID = spawn.EntityID

	if spawn.Result == quadtree.Ignored.String() {
		return errors.New("spawned entity was ignored").
			WithType(ErrTypeCheckFailed).
			WithTag("position", position)
	}

	if !slices.Contains(nearby.EntityIDs, spawn.EntityID) {
		return errors.New("spawned entity is not nearby").
			WithType(ErrTypeCheckFailed).
			WithTag("entity_id", spawn.EntityID).
			WithTag("nearby_entity_ids", nearby.EntityIDs)
	}

	if !slices.Contains(nearby.Positions, position) {
		return errors.New("spawned position is not nearby").
			WithType(ErrTypeCheckFailed).
			WithTag("position", position)
	}

	if tree.Signature != "" {
		if err := models.VerifyTree(tree.Tree); err != nil {
			return errors.New("tree signature is invalid").
				WithType(ErrTypeCheckFailed).
				Wrap(err)
		}
		res.TreeSigned = true
	} else if opts.RequireSignedTree {
		return errors.New("tree is not signed").
			WithType(ErrTypeCheckFailed)
	}

	return nil
}

func dial(ctx context.Context, opts Options) (*websocket.Conn, error) {
	endpoint, origin, err := websocketURLs(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	config, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, errors.New("creating websocket config failed").Wrap(err)
	}

	config.Header.Set(qfhttp.HeaderClientID, uuid.NewString())
	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.AuthToken != "" {
		config.Header.Set(qfhttp.HeaderAuthorization, "Bearer "+opts.AuthToken)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, errors.New("dialing websocket failed").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}
	return conn, nil
}

// websocketURLs returns the websocket url of the given endpoint and the
// origin to send with the handshake.
func websocketURLs(endpoint string) (string, string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", errors.New("parsing endpoint failed").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", errors.New("unsupported endpoint scheme").
			WithTag("endpoint", endpoint)
	}

	origin := url.URL{Scheme: "http", Host: u.Host}
	if u.Scheme == "wss" {
		origin.Scheme = "https"
	}
	return u.String(), origin.String(), nil
}

func expect(requestID uint32, msgType messages.MsgType, v any) []scenario.Handler {
	return []scenario.Handler{
		scenario.FilterByRequestID(requestID),
		failOnErrorResponse,
		scenario.FilterByType(msgType),
		func(msg messages.Msg) error {
			if v == nil {
				return nil
			}
			return msg.DataTo(v)
		},
	}
}

func failOnErrorResponse(msg messages.Msg) error {
	if msg.Type != messages.MsgTypeErrorResponse {
		return nil
	}

	var res messages.ErrorResponse
	if err := msg.DataTo(&res); err != nil {
		return err
	}
	return errors.New("server returned an error").
		WithType(ErrTypeErrorResponse).
		WithTag("request_id", res.RequestID).
		WithTag("code", res.Code)
}

// Request is the body of a smoke test request. The server tests itself when
// no endpoint is given.
type Request struct {
	Endpoints []string      `json:"endpoints"`
	Timeout   time.Duration `json:"timeout"`
}

// Results is the body of a smoke test response.
type Results struct {
	FromEndpoint string   `json:"from_endpoint"`
	Results      []Result `json:"results"`
}

// HandleSmokeTest runs the smoke test against the requested endpoints and
// replies with their results.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request

		b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			logs.Warn(errors.New("reading smoke test request failed").Wrap(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logs.WithTag("body", string(b)).
					Debug(errors.New("decoding smoke test request failed").Wrap(err))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if len(req.Endpoints) == 0 {
			req.Endpoints = []string{opts.Endpoint}
		}

		ctx, cancel := mergeContext(ctx, r.Context())
		defer cancel()

		res := Results{
			FromEndpoint: opts.Endpoint,
			Results:      make([]Result, len(req.Endpoints)),
		}

		var g errgroup.Group
		g.SetLimit(maxConcurrentTests)

		for i, endpoint := range req.Endpoints {
			i, endpoint := i, endpoint

			g.Go(func() error {
				testOpts := opts
				testOpts.Endpoint = endpoint
				if req.Timeout > 0 {
					testOpts.Timeout = req.Timeout
				}

				result, err := Run(ctx, testOpts)
				if err != nil {
					logs.WithTag("from_endpoint", opts.Endpoint).
						WithTag("to_endpoint", endpoint).
						Warn(err)
				}
				res.Results[i] = result
				return nil
			})
		}
		g.Wait()

		body, err := json.Marshal(res)
		if err != nil {
			logs.Warn(errors.New("encoding smoke test results failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set(qfhttp.HeaderContentType, "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// mergeContext returns a context canceled when either a or b is done.
func mergeContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)

	return ctx, func() {
		stop()
		cancel()
	}
}
