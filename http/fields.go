package http

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadfield/featureflag"
	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/encoding/json"
)

const (
	// The maximum size of a request body.
	maxBodySize = 8 << 20

	// A bulk load is broadcast in at most maxSpawnBroadcasts messages of at
	// least minSpawnBatchSize entities.
	maxSpawnBroadcasts = 16
	minSpawnBatchSize  = 256
)

const ErrTypeBodyTooLarge = "body_too_large"

// FieldsAPI serves the REST interface of the field store.
type FieldsAPI struct {
	// The store that contains all the server fields.
	Fields *models.FieldStore

	// The config of fields created with POST /fields.
	FieldDefaults models.FieldConfig

	// The identity used to sign tree snapshots. Snapshots are unsigned when
	// nil.
	Identity *models.Identity

	// The bearer token required on every request. No token is required when
	// empty.
	AuthToken string

	FeatureFlags featureflag.FeatureFlag
}

// Router returns the router serving the API under /fields.
func (a *FieldsAPI) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(AuthMiddleware(a.AuthToken))

	r.Route("/fields", func(r chi.Router) {
		r.Get("/", a.handleListFields)
		r.Post("/", a.handleCreateField)

		r.Route("/{fieldID}", func(r chi.Router) {
			r.Get("/", a.handleGetField)
			r.Post("/positions", a.handleConstruct)
			r.Get("/nearby", a.handleNearby)
			r.Get("/tree", a.handleTree)
		})
	})
	return r
}

func (a *FieldsAPI) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields := a.Fields.List()

	res := messages.FieldList{
		Fields: make([]messages.FieldInfo, len(fields)),
	}
	for i, f := range fields {
		res.Fields[i] = a.Fields.FieldToMessage(f)
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *FieldsAPI) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var req messages.FieldConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	conf, err := a.FieldDefaults.WithOverrides(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, messages.ErrorCodeBadRequest, err)
		return
	}
	conf.Persist = true

	field, err := a.Fields.Create(r.Context(), conf)
	if errors.IsType(err, models.ErrTypeFieldLimitReached) {
		writeError(w, http.StatusConflict, messages.ErrorCodeLimitReached, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, messages.ErrorCodeBadRequest, err)
		return
	}

	logs.WithTag("field_id", a.Fields.GlobalFieldID(field.ID)).
		WithTag("request_id", middleware.GetReqID(r.Context())).
		Info("field created")

	writeJSON(w, http.StatusCreated, a.Fields.FieldToMessage(field))
}

func (a *FieldsAPI) handleGetField(w http.ResponseWriter, r *http.Request) {
	field, ok := a.field(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, a.Fields.FieldToMessage(field))
}

func (a *FieldsAPI) handleConstruct(w http.ResponseWriter, r *http.Request) {
	field, ok := a.field(w, r)
	if !ok {
		return
	}

	var req messages.ConstructRequest
	if isProtobuf(r) {
		b, err := readBody(w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}

		if req.Positions, err = messages.UnmarshalPositions(b); err != nil {
			writeError(w, http.StatusBadRequest, messages.ErrorCodeBadRequest, err)
			return
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	colors := make([]models.Color, len(req.Colors))
	for i, c := range req.Colors {
		colors[i] = models.ColorFromMessage(c)
	}

	entities, res, err := field.Construct(0, req.Positions, colors)
	if errors.IsType(err, models.ErrTypeFieldClosed) {
		writeError(w, http.StatusNotFound, messages.ErrorCodeNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, messages.ErrorCodeInternal, err)
		return
	}

	a.FeatureFlags.IfNotSet(featureflag.FlagDisableEntitySpawnBroadcast, func() {
		now := time.Now()
		for _, batch := range spawnBatches(entities) {
			field.Broadcast(nil, messages.EntitiesSpawnBroadcast{
				Timestamp:       now,
				OriginTimestamp: now,
				Entities:        models.EntitiesToMessage(batch),
			})
		}
	})

	ids := make([]uint32, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}

	writeJSON(w, http.StatusOK, messages.ConstructResponse{
		Result:    res,
		EntityIDs: ids,
	})
}

func (a *FieldsAPI) handleNearby(w http.ResponseWriter, r *http.Request) {
	field, ok := a.field(w, r)
	if !ok {
		return
	}

	origin, err := parseOrigin(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, messages.ErrorCodeBadRequest, err)
		return
	}

	positions, entityIDs := field.Nearby(origin)
	if positions == nil {
		positions = []quadtree.Vector3f{}
	}
	if entityIDs == nil {
		entityIDs = []uint32{}
	}

	writeJSON(w, http.StatusOK, messages.NearbyResponse{
		Timestamp: time.Now(),
		Positions: positions,
		EntityIDs: entityIDs,
	})
}

func (a *FieldsAPI) handleTree(w http.ResponseWriter, r *http.Request) {
	field, ok := a.field(w, r)
	if !ok {
		return
	}

	identity := a.Identity
	if a.FeatureFlags.IsSet(featureflag.FlagDisableTreeSignature) {
		identity = nil
	}

	tree, err := field.TreeMessage(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, messages.ErrorCodeInternal, err)
		return
	}

	writeJSON(w, http.StatusOK, tree)
}

func (a *FieldsAPI) field(w http.ResponseWriter, r *http.Request) (*models.Field, bool) {
	fieldID := chi.URLParam(r, "fieldID")

	field, ok := a.Fields.GetByGlobalID(fieldID)
	if !ok {
		writeError(w, http.StatusNotFound, messages.ErrorCodeNotFound,
			errors.New("field not found").WithTag("field_id", fieldID))
		return nil, false
	}
	return field, true
}

func parseOrigin(r *http.Request) (quadtree.Vector3f, error) {
	var origin quadtree.Vector3f
	query := r.URL.Query()

	for _, c := range []struct {
		name     string
		value    *float32
		required bool
	}{
		{name: "x", value: &origin.X, required: true},
		{name: "y", value: &origin.Y, required: true},
		{name: "z", value: &origin.Z},
	} {
		v := query.Get(c.name)
		if v == "" {
			if c.required {
				return origin, errors.New("missing coordinate").WithTag("coordinate", c.name)
			}
			continue
		}

		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return origin, errors.New("invalid coordinate").
				WithTag("coordinate", c.name).
				Wrap(err)
		}
		*c.value = float32(f)
	}

	if !origin.IsFinite() {
		return origin, errors.New("origin must be finite")
	}
	return origin, nil
}

func isProtobuf(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get(HeaderContentType))
	return err == nil && mediaType == messages.ContentTypePositions
}

// spawnBatches splits bulk loaded entities into a bounded number of
// broadcast batches.
func spawnBatches(entities []*models.Entity) [][]*models.Entity {
	size := max((len(entities)+maxSpawnBroadcasts-1)/maxSpawnBroadcasts, minSpawnBatchSize)

	var batches [][]*models.Entity
	for start := 0; start < len(entities); start += size {
		end := min(start+size, len(entities))
		batches = append(batches, entities[start:end])
	}
	return batches
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return nil, errors.New("request body too large").
			WithType(ErrTypeBodyTooLarge).
			WithTag("limit", maxBytesErr.Limit).
			Wrap(err)
	}
	if err != nil {
		return nil, errors.New("reading body failed").Wrap(err)
	}
	return b, nil
}

// writeBodyError writes the response of a request whose body could not be
// read or decoded.
func writeBodyError(w http.ResponseWriter, err error) {
	if errors.IsType(err, ErrTypeBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, messages.ErrorCodeBodyTooLarge, err)
		return
	}
	writeError(w, http.StatusBadRequest, messages.ErrorCodeBadRequest, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	b, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.New("decoding body failed").Wrap(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.WithTag("status", status).
			Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderContentType, "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, code messages.ErrorCode, err error) {
	entry := logs.WithTag("code", code).WithTag("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error(err)
	} else {
		entry.Debug(err)
	}

	writeJSON(w, status, messages.HTTPError{
		Code:    code,
		Message: err.Error(),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			WithTag("status", ww.Status()).
			WithTag("request_id", middleware.GetReqID(r.Context())).
			WithTag("duration", time.Since(start)).
			Debug("http request")
	})
}
