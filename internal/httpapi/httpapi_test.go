package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/logging"
)

type fakeTokenAuth struct{ tokens map[string]int32 }

func (f fakeTokenAuth) Lookup(token string) (int32, bool) {
	id, ok := f.tokens[token]
	return id, ok
}

type fakeSGroupAuth struct{ tokens map[string][2]int32 }

func (f fakeSGroupAuth) ByTokenIDs(token string) (int32, int32, bool) {
	ids, ok := f.tokens[token]
	if !ok {
		return 0, 0, false
	}
	return ids[0], ids[1], true
}

func newTestServer() *Server {
	tokens := fakeTokenAuth{tokens: map[string]int32{"good-token": 42}}
	sgroups := fakeSGroupAuth{tokens: map[string][2]int32{"sg-token": {42, 7}}}
	return NewServer(tokens, sgroups, logging.NewDefault())
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServeRejectsMissingToken(t *testing.T) {
	s := newTestServer()
	s.RegisterVoid("addStream", func(c ctx) error { return nil })

	rec := doRequest(t, s, http.MethodPost, "/addStream", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeVoidMethodReturns204(t *testing.T) {
	s := newTestServer()
	called := false
	s.RegisterVoid("addStream", func(c ctx) error {
		called = true
		assert.Equal(t, int32(42), c.idGroup)
		return nil
	})

	rec := doRequest(t, s, http.MethodPost, "/addStream", "good-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)
}

func TestServeDataMethodReturnsEnvelope(t *testing.T) {
	s := newTestServer()
	s.RegisterData("listStreams", func(c ctx) (any, error) {
		return []string{"cam1"}, nil
	})

	rec := doRequest(t, s, http.MethodGet, "/listStreams", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "ok", env.Message)
}

func TestServeUnknownMethodReturns404(t *testing.T) {
	s := newTestServer()
	rec := doRequest(t, s, http.MethodGet, "/doesNotExist", "good-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHandlerErrorMapsToHTTPStatus(t *testing.T) {
	s := newTestServer()
	s.RegisterData("getEvents", func(c ctx) (any, error) {
		return nil, errs.BadRequest("bad input")
	})

	rec := doRequest(t, s, http.MethodGet, "/getEvents", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSGRejectsMissingToken(t *testing.T) {
	s := newTestServer()
	s.RegisterSGData("listFaces", func(c ctx) (any, error) { return nil, nil })

	rec := doRequest(t, s, http.MethodGet, "/sg/listFaces", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeSGDispatchesByMethodName(t *testing.T) {
	s := newTestServer()
	var gotGroup, gotSGroup int32
	s.RegisterSGData("listFaces", func(c ctx) (any, error) {
		gotGroup, gotSGroup = c.idGroup, c.sGroup
		return []string{}, nil
	})

	rec := doRequest(t, s, http.MethodGet, "/sg/listFaces", "sg-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(42), gotGroup)
	assert.Equal(t, int32(7), gotSGroup)
}

func TestMethodFromPathStripsLeadingSlash(t *testing.T) {
	assert.Equal(t, "registerFace", methodFromPath("/sg", "/sg/registerFace"))
	assert.Equal(t, "addStream", methodFromPath("/", "/addStream"))
	assert.Equal(t, "", methodFromPath("/sg", "/sg"))
}
