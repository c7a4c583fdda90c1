package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/logger"
)

func newTestServer(t *testing.T) (*echo.Echo, bottle.Store) {
	t.Helper()
	store, err := bottle.NewJSONStore(nil, t.TempDir())
	require.NoError(t, err)

	e := echo.New()
	NewBottlesHandler(logger.L, store).Register(e)
	NewPingHandler(logger.L).Register(e)
	return e, store
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAddBottleEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/bottles",
		`{"content":"hi","sender":"amy","sender_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AddResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
}

func TestAddRejectsEmptyBottle(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/bottles", `{"content":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPickRandomEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	// Empty pool first.
	rec := doJSON(e, http.MethodGet, "/api/bottles/random", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doJSON(e, http.MethodPost, "/api/bottles", `{"content":"drift","sender":"amy"}`)

	rec = doJSON(e, http.MethodGet, "/api/bottles/random", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var b bottle.Bottle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "drift", b.Content)
	assert.True(t, b.Picked)

	// Now the pool is exhausted again.
	rec = doJSON(e, http.MethodGet, "/api/bottles/random", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/bottles", `{"content":"one"}`)
	doJSON(e, http.MethodGet, "/api/bottles/random", "")

	rec := doJSON(e, http.MethodPost, "/api/bottles/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Restored)

	rec = doJSON(e, http.MethodGet, "/api/bottles/random", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCountsEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/bottles", `{"content":"one"}`)
	doJSON(e, http.MethodPost, "/api/bottles", `{"content":"two"}`)
	doJSON(e, http.MethodGet, "/api/bottles/random", "")

	rec := doJSON(e, http.MethodGet, "/api/bottles/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Active)
	assert.Equal(t, 1, resp.Picked)
}

func TestPickedEndpoints(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/api/bottles", `{"content":"kept","sender":"bob"}`)
	doJSON(e, http.MethodGet, "/api/bottles/random", "")

	rec := doJSON(e, http.MethodGet, "/api/bottles/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var b bottle.Bottle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "kept", b.Content)

	rec = doJSON(e, http.MethodGet, "/api/bottles/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/bottles/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/bottles/picked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)
}

func TestPing(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doJSON(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
