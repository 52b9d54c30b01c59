package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/quadfield/featureflag"
	qfhttp "github.com/aukilabs/quadfield/http"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/aukilabs/quadfield/simulation"
	"github.com/aukilabs/quadfield/smoketest"
	qfwebsocket "github.com/aukilabs/quadfield/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

var (
	// The Quadfield version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadfield_info",
		Help:        "Quadfield information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"QUADFIELD_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"QUADFIELD_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"QUADFIELD_PUBLIC_ENDPOINT"      help:"The public endpoint where this Quadfield server is reachable."`
	ServerID           string        `cli:""        env:"QUADFIELD_SERVER_ID"            help:"The id prefixed to field ids."`
	AuthToken          string        `cli:""        env:"QUADFIELD_AUTH_TOKEN"           help:"The bearer token required by clients. Authentication is disabled when empty."`
	PrivateKey         string        `cli:""        env:"QUADFIELD_PRIVATE_KEY"          help:"The private key of an Ethereum-compatible wallet used to sign tree snapshots."`
	PrivateKeyFile     string        `cli:""        env:"QUADFIELD_PRIVATE_KEY_FILE"     help:"The file that contains the private key used to sign tree snapshots."`
	LogLevel           string        `cli:""        env:"QUADFIELD_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"QUADFIELD_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"QUADFIELD_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"QUADFIELD_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration `cli:",hidden" env:"QUADFIELD_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	ShutdownTimeout    time.Duration `cli:",hidden" env:"QUADFIELD_SHUTDOWN_TIMEOUT"     help:"The maximum duration to wait for open requests on shutdown."`
	SpawnRate          float64       `cli:",hidden" env:"QUADFIELD_SPAWN_RATE"           help:"The number of entities a client can spawn per second. Unlimited when zero."`
	SpawnBurst         int           `cli:",hidden" env:"QUADFIELD_SPAWN_BURST"          help:"The number of entities a client can spawn at once."`
	MaxFields          int           `cli:",hidden" env:"QUADFIELD_MAX_FIELDS"           help:"The maximum number of fields. Unlimited when zero."`
	Field              fieldConfig   `cli:",hidden" env:"-"                              help:"Field defaults."`
	Seed               seedConfig    `cli:",hidden" env:"-"                              help:"Persistent fields created at startup."`
	Events             eventsConfig  `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"QUADFIELD_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                              help:"Show version."`
	Help               bool          `cli:""        env:"-"                              help:"Show help."`
}

type fieldConfig struct {
	CenterX        float64 `cli:",hidden" env:"QUADFIELD_FIELD_CENTER_X"        help:"The x coordinate of the field center."`
	CenterY        float64 `cli:",hidden" env:"QUADFIELD_FIELD_CENTER_Y"        help:"The y coordinate of the field center."`
	CenterZ        float64 `cli:",hidden" env:"QUADFIELD_FIELD_CENTER_Z"        help:"The z coordinate of the field center."`
	Width          float64 `cli:",hidden" env:"QUADFIELD_FIELD_WIDTH"           help:"The field width."`
	Height         float64 `cli:",hidden" env:"QUADFIELD_FIELD_HEIGHT"          help:"The field height."`
	Capacity       int     `cli:",hidden" env:"QUADFIELD_FIELD_CAPACITY"        help:"The number of positions a quadtree node holds before subdividing."`
	MaxDepth       int     `cli:",hidden" env:"QUADFIELD_FIELD_MAX_DEPTH"       help:"The depth below which quadtree nodes stop subdividing."`
	BoundaryPolicy string  `cli:",hidden" env:"QUADFIELD_FIELD_BOUNDARY_POLICY" help:"How positions on shared edges are routed (shared|exclusive)."`
}

type seedConfig struct {
	Fields   int `cli:",hidden" env:"QUADFIELD_SEED_FIELDS"   help:"The number of persistent fields created at startup."`
	Entities int `cli:",hidden" env:"QUADFIELD_SEED_ENTITIES" help:"The number of random entities spawned in each seeded field."`
	Seed     int `cli:",hidden" env:"QUADFIELD_SEED"          help:"The seed of the random positions. Time based when zero."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"QUADFIELD_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Disabled when empty."`
	FlushInterval time.Duration `cli:",hidden" env:"QUADFIELD_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"QUADFIELD_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"QUADFIELD_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "qf",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		ShutdownTimeout:    time.Second * 10,
		SpawnRate:          100,
		SpawnBurst:         100,
		Field: fieldConfig{
			Width:          100,
			Height:         100,
			Capacity:       8,
			MaxDepth:       quadtree.DefaultMaxDepth,
			BoundaryPolicy: quadtree.BoundaryShared.String(),
		},
		Seed: seedConfig{
			Fields:   1,
			Entities: 1000,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Quadfield server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	identity, err := loadIdentity(conf)
	if err != nil {
		logs.Fatal(errors.New("error loading private key").Wrap(err))
	}

	fieldDefaults, err := conf.Field.toModel()
	if err != nil {
		logs.Fatal(errors.New("invalid field config").Wrap(err))
	}

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "quadfield",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	fields := models.FieldStore{
		ServerID:  conf.ServerID,
		MaxFields: conf.MaxFields,
	}

	var ready atomic.Bool
	go func() {
		if err := seedFields(ctx, &fields, fieldDefaults, conf.Seed); err != nil {
			logs.Fatal(errors.New("seeding fields failed").Wrap(err))
		}
		ready.Store(true)
	}()
	readinessCheck := ready.Load

	var service http.ServeMux

	fieldsAPI := qfhttp.HandleWithCORS((&qfhttp.FieldsAPI{
		Fields:        &fields,
		FieldDefaults: fieldDefaults,
		Identity:      identity,
		AuthToken:     conf.AuthToken,
		FeatureFlags:  featureFlags,
	}).Router())
	service.Handle("/fields", fieldsAPI)
	service.Handle("/fields/", fieldsAPI)

	service.Handle("/health", qfhttp.HandleWithCORS(http.HandlerFunc(qfhttp.HandleHealthCheck)))
	service.Handle("/ready", qfhttp.HandleWithCORS(http.HandlerFunc(qfhttp.HandleReadyCheck(readinessCheck))))
	service.Handle("/version", qfhttp.HandleWithCORS(http.HandlerFunc(qfhttp.HandleVersion(version))))

	service.HandleFunc("/smoke-test", qfhttp.VerifyAuthTokenHandler(conf.AuthToken, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:          conf.PublicEndpoint,
		AuthToken:         conf.AuthToken,
		UserAgent:         fmt.Sprintf("Quadfield %s", version),
		RequireSignedTree: identity != nil && !featureFlags.IsSet(featureflag.FlagDisableTreeSignature),
	})))

	service.Handle("/", qfhttp.HandleWithCORS(websocket.Server{
		Handshake: qfhttp.VerifyAuthToken(conf.AuthToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh qfwebsocket.Handler = &qfwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Fields:                  &fields,
				FieldDefaults:           fieldDefaults,
				SpawnRate:               rate.Limit(conf.SpawnRate),
				SpawnBurst:              conf.SpawnBurst,
				Identity:                identity,
				FeatureFlags:            featureFlags,
			}
			h := qfwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = qfwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			qfwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", qfhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", qfhttp.HandleReadyCheck(readinessCheck))

	entry := logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("feature_flags", featureFlags.List())
	if identity != nil {
		entry = entry.WithTag("wallet_address", identity.Address())
	}
	entry.Info("starting quadfield server")

	qfhttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			qfhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func (c fieldConfig) toModel() (models.FieldConfig, error) {
	policy, err := quadtree.ParseBoundaryPolicy(c.BoundaryPolicy)
	if err != nil {
		return models.FieldConfig{}, err
	}

	conf := models.FieldConfig{
		Center: quadtree.Vector3f{
			X: float32(c.CenterX),
			Y: float32(c.CenterY),
			Z: float32(c.CenterZ),
		},
		Size: quadtree.Vector3f{
			X: float32(c.Width),
			Y: float32(c.Height),
		},
		Capacity:       c.Capacity,
		MaxDepth:       c.MaxDepth,
		BoundaryPolicy: policy,
	}

	// Validates the config before any client relies on it.
	if _, err := conf.NewField(0); err != nil {
		return models.FieldConfig{}, err
	}
	return conf, nil
}

func seedFields(ctx context.Context, store *models.FieldStore, defaults models.FieldConfig, conf seedConfig) error {
	defaults.Persist = true

	fields := make([]*models.Field, 0, conf.Fields)
	for i := 0; i < conf.Fields; i++ {
		field, err := store.Create(ctx, defaults)
		if err != nil {
			return err
		}
		fields = append(fields, field)

		logs.WithTag("field_id", store.GlobalFieldID(field.ID)).
			WithTag("field_uuid", field.FieldUUID).
			Info("persistent field created")
	}

	seed := int64(conf.Seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return simulation.SeedFields(ctx, fields, conf.Entities, seed)
}

func loadIdentity(conf config) (*models.Identity, error) {
	privateKey := conf.PrivateKey

	if len(conf.PrivateKeyFile) != 0 {
		privateKeyBytes, err := os.ReadFile(conf.PrivateKeyFile)
		if err != nil {
			return nil, errors.New("error loading private key from file").
				WithTag("file_name", conf.PrivateKeyFile).
				Wrap(err)
		}
		privateKey = string(privateKeyBytes)
	}

	if len(privateKey) == 0 {
		logs.Warn(errors.New("no private key, tree snapshots are not signed"))
		return nil, nil
	}
	return models.NewIdentity(privateKey)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if len(conf.PrivateKey) != 0 &&
		len(conf.PrivateKeyFile) != 0 {
		return errors.New("have to specify either private key or private key file, not both")
	}

	if conf.SyncClockInterval <= 0 {
		return errors.New("sync clock interval must be positive").
			WithTag("sync_clock_interval", conf.SyncClockInterval)
	}

	if conf.SpawnRate < 0 {
		return errors.New("spawn rate must not be negative").
			WithTag("spawn_rate", conf.SpawnRate)
	}

	if conf.Seed.Fields < 0 || conf.Seed.Entities < 0 {
		return errors.New("seed counts must not be negative").
			WithTag("fields", conf.Seed.Fields).
			WithTag("entities", conf.Seed.Entities)
	}

	if conf.MaxFields > 0 && conf.Seed.Fields > conf.MaxFields {
		return errors.New("more seeded fields than the field limit").
			WithTag("fields", conf.Seed.Fields).
			WithTag("max_fields", conf.MaxFields)
	}

	return nil
}
