package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aukilabs/quadfield/messages"
	"github.com/aukilabs/quadfield/models"
	"github.com/aukilabs/quadfield/quadtree"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testFieldDefaults = models.FieldConfig{
	Size:           quadtree.Vector3f{X: 4, Y: 4},
	Capacity:       1,
	MaxDepth:       quadtree.DefaultMaxDepth,
	BoundaryPolicy: quadtree.BoundaryShared,
}

func newTestAPI(t *testing.T, opts ...func(*FieldsAPI)) (*FieldsAPI, *httptest.Server) {
	api := &FieldsAPI{
		Fields:        &models.FieldStore{ServerID: "ted"},
		FieldDefaults: testFieldDefaults,
	}
	for _, opt := range opts {
		opt(api)
	}

	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return api, server
}

func doRequest(t *testing.T, method, url, contentType string, body []byte, out any) int {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set(HeaderContentType, contentType)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	if out != nil && len(b) != 0 {
		require.NoError(t, json.Unmarshal(b, out))
	}
	return res.StatusCode
}

func createTestField(t *testing.T, server *httptest.Server) messages.FieldInfo {
	var info messages.FieldInfo
	status := doRequest(t, http.MethodPost, server.URL+"/fields", "application/json", nil, &info)
	require.Equal(t, http.StatusCreated, status)
	return info
}

func TestFieldsAPICreateAndList(t *testing.T) {
	_, server := newTestAPI(t)

	var list messages.FieldList
	status := doRequest(t, http.MethodGet, server.URL+"/fields", "", nil, &list)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, list.Fields)

	info := createTestField(t, server)
	require.Equal(t, "tedx1", info.FieldID)
	require.True(t, info.Persist)
	require.Equal(t, 1, info.Capacity)
	require.Equal(t, quadtree.Vector3f{X: 4, Y: 4}, info.Region.Size)

	body := []byte(`{"region":{"center":{"x":1,"y":1},"size":{"x":2,"y":2}},"capacity":8,"boundary_policy":"exclusive"}`)
	var custom messages.FieldInfo
	status = doRequest(t, http.MethodPost, server.URL+"/fields", "application/json", body, &custom)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "tedx2", custom.FieldID)
	require.Equal(t, 8, custom.Capacity)
	require.Equal(t, "exclusive", custom.BoundaryPolicy)
	require.Equal(t, quadtree.Vector3f{X: 1, Y: 1}, custom.Region.Center)
	require.Equal(t, quadtree.DefaultMaxDepth, custom.MaxDepth)

	var flat messages.FieldInfo
	status = doRequest(t, http.MethodPost, server.URL+"/fields", "application/json", []byte(`{"max_depth":0}`), &flat)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, 0, flat.MaxDepth)
	require.Equal(t, 1, flat.Capacity)

	status = doRequest(t, http.MethodGet, server.URL+"/fields", "", nil, &list)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Fields, 3)
	require.Equal(t, info.FieldID, list.Fields[0].FieldID)
	require.Equal(t, custom.FieldID, list.Fields[1].FieldID)
	require.Equal(t, flat.FieldID, list.Fields[2].FieldID)

	var got messages.FieldInfo
	status = doRequest(t, http.MethodGet, server.URL+"/fields/"+info.FieldID, "", nil, &got)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, info.FieldUUID, got.FieldUUID)
}

func TestFieldsAPICreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   messages.ErrorCode
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest, code: messages.ErrorCodeBadRequest},
		{name: "invalid policy", body: `{"boundary_policy":"diagonal"}`, status: http.StatusBadRequest, code: messages.ErrorCodeBadRequest},
		{name: "invalid capacity", body: `{"capacity":1000}`, status: http.StatusBadRequest, code: messages.ErrorCodeBadRequest},
		{name: "invalid max depth", body: `{"max_depth":65}`, status: http.StatusBadRequest, code: messages.ErrorCodeBadRequest},
		{name: "zero capacity", body: `{"capacity":0}`, status: http.StatusBadRequest, code: messages.ErrorCodeBadRequest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, server := newTestAPI(t)

			var res messages.HTTPError
			status := doRequest(t, http.MethodPost, server.URL+"/fields", "application/json", []byte(test.body), &res)
			require.Equal(t, test.status, status)
			require.Equal(t, test.code, res.Code)
			require.NotEmpty(t, res.Message)
		})
	}

	t.Run("limit reached", func(t *testing.T) {
		_, server := newTestAPI(t, func(a *FieldsAPI) {
			a.Fields.MaxFields = 1
		})
		createTestField(t, server)

		var res messages.HTTPError
		status := doRequest(t, http.MethodPost, server.URL+"/fields", "application/json", nil, &res)
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, messages.ErrorCodeLimitReached, res.Code)
	})
}

func TestFieldsAPIFieldNotFound(t *testing.T) {
	_, server := newTestAPI(t)

	for _, path := range []string{"", "/nearby?x=0&y=0", "/tree"} {
		var res messages.HTTPError
		status := doRequest(t, http.MethodGet, server.URL+"/fields/tedx42"+path, "", nil, &res)
		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, messages.ErrorCodeNotFound, res.Code)
	}

	status := doRequest(t, http.MethodPost, server.URL+"/fields/tedx42/positions", "application/json", []byte(`{}`), nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestFieldsAPIConstruct(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		api, server := newTestAPI(t)
		info := createTestField(t, server)

		body := []byte(`{"positions":[{"x":1,"y":1},{"x":-1,"y":-1},{"x":3,"y":3}],"colors":[{"r":1,"g":0,"b":0}]}`)

		var res messages.ConstructResponse
		status := doRequest(t, http.MethodPost, server.URL+"/fields/"+info.FieldID+"/positions", "application/json", body, &res)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, quadtree.BulkResult{Inserted: 2, Ignored: 1}, res.Result)
		require.Len(t, res.EntityIDs, 2)

		field, ok := api.Fields.GetByGlobalID(info.FieldID)
		require.True(t, ok)
		require.Equal(t, 2, field.EntityCount())

		entity, ok := field.EntityByID(res.EntityIDs[0])
		require.True(t, ok)
		require.Equal(t, models.Color{R: 1}, entity.Color)
	})

	t.Run("protobuf", func(t *testing.T) {
		api, server := newTestAPI(t)
		info := createTestField(t, server)

		body := messages.MarshalPositions([]quadtree.Vector3f{
			{X: 1, Y: 1},
			{X: -1, Y: 1},
		})

		var res messages.ConstructResponse
		status := doRequest(t, http.MethodPost, server.URL+"/fields/"+info.FieldID+"/positions", messages.ContentTypePositions, body, &res)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, quadtree.BulkResult{Inserted: 2}, res.Result)

		field, _ := api.Fields.GetByGlobalID(info.FieldID)
		require.Equal(t, 2, field.DebugInfo().PointCount)
	})

	t.Run("invalid protobuf", func(t *testing.T) {
		_, server := newTestAPI(t)
		info := createTestField(t, server)

		var res messages.HTTPError
		status := doRequest(t, http.MethodPost, server.URL+"/fields/"+info.FieldID+"/positions", messages.ContentTypePositions, []byte{0x0a, 0x05}, &res)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, messages.ErrorCodeBadRequest, res.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		api, server := newTestAPI(t)
		info := createTestField(t, server)

		body := `{"positions":[` + strings.Repeat(" ", maxBodySize) + `]}`
		req := httptest.NewRequest(http.MethodPost, "/fields/"+info.FieldID+"/positions", strings.NewReader(body))
		req.Header.Set(HeaderContentType, "application/json")
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, req)

		var res messages.HTTPError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		require.Equal(t, messages.ErrorCodeBodyTooLarge, res.Code)
	})
}

func TestSpawnBatches(t *testing.T) {
	newEntities := func(n int) []*models.Entity {
		entities := make([]*models.Entity, n)
		for i := range entities {
			entities[i] = models.NewEntity(uint32(i+1), 0, quadtree.Vector3f{}, models.Color{})
		}
		return entities
	}

	tests := []struct {
		name     string
		entities int
		batches  int
	}{
		{name: "empty", entities: 0, batches: 0},
		{name: "single batch", entities: minSpawnBatchSize, batches: 1},
		{name: "min batch size", entities: minSpawnBatchSize*3 + 1, batches: 4},
		{name: "max broadcasts", entities: minSpawnBatchSize * maxSpawnBroadcasts * 10, batches: maxSpawnBroadcasts},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entities := newEntities(test.entities)
			batches := spawnBatches(entities)
			require.Len(t, batches, test.batches)

			var ids []uint32
			for _, batch := range batches {
				for _, e := range batch {
					ids = append(ids, e.ID)
				}
			}
			require.Len(t, ids, test.entities)
			for i, id := range ids {
				require.Equal(t, uint32(i+1), id)
			}
		})
	}
}

func TestFieldsAPINearby(t *testing.T) {
	_, server := newTestAPI(t)
	info := createTestField(t, server)

	body := []byte(`{"positions":[{"x":1,"y":1},{"x":-1,"y":-1}]}`)
	var construct messages.ConstructResponse
	status := doRequest(t, http.MethodPost, server.URL+"/fields/"+info.FieldID+"/positions", "application/json", body, &construct)
	require.Equal(t, http.StatusOK, status)

	var res messages.NearbyResponse
	status = doRequest(t, http.MethodGet, server.URL+"/fields/"+info.FieldID+"/nearby?x=1&y=1", "", nil, &res)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []quadtree.Vector3f{{X: 1, Y: 1}}, res.Positions)
	require.Equal(t, construct.EntityIDs[:1], res.EntityIDs)

	status = doRequest(t, http.MethodGet, server.URL+"/fields/"+info.FieldID+"/nearby?x=10&y=10", "", nil, &res)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, res.Positions)
	require.Empty(t, res.EntityIDs)

	for _, query := range []string{"x=1", "x=1&y=a", "x=NaN&y=1"} {
		var errRes messages.HTTPError
		status = doRequest(t, http.MethodGet, server.URL+"/fields/"+info.FieldID+"/nearby?"+query, "", nil, &errRes)
		require.Equal(t, http.StatusBadRequest, status, query)
		require.Equal(t, messages.ErrorCodeBadRequest, errRes.Code)
	}
}

func TestFieldsAPITree(t *testing.T) {
	identity, err := models.NewIdentity(testPrivateKey)
	require.NoError(t, err)

	api, server := newTestAPI(t, func(a *FieldsAPI) {
		a.Identity = identity
	})

	field, err := api.Fields.Create(context.Background(), testFieldDefaults)
	require.NoError(t, err)
	field.Construct(0, []quadtree.Vector3f{{X: 1, Y: 1}, {X: -1, Y: -1}}, nil)

	var tree messages.Tree
	status := doRequest(t, http.MethodGet, server.URL+"/fields/"+api.Fields.GlobalFieldID(field.ID)+"/tree", "", nil, &tree)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, tree.Nodes, 5)
	require.Equal(t, 2, tree.Info.PointCount)
	require.Equal(t, identity.Address(), tree.WalletAddress)
	require.NoError(t, models.VerifyTree(tree))
}

func TestFieldsAPIAuth(t *testing.T) {
	_, server := newTestAPI(t, func(a *FieldsAPI) {
		a.AuthToken = "secret"
	})

	status := doRequest(t, http.MethodGet, server.URL+"/fields", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/fields", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderAuthorization, "Bearer secret")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), `{"fields":`))
}
