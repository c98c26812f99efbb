package pipeline

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFrameDecodesDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	data, err := FetchFrame(context.Background(), "data:image/jpeg;base64,"+payload, time.Second, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFetchFrameRejectsMalformedDataURI(t *testing.T) {
	_, err := FetchFrame(context.Background(), "data:image/jpeg;base64_no_comma", time.Second, 1)
	assert.Error(t, err)
}

func TestFetchFrameFetchesOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("frame-bytes"))
	}))
	defer srv.Close()

	data, err := FetchFrame(context.Background(), srv.URL, time.Second, 1)
	require.NoError(t, err)
	assert.Equal(t, "frame-bytes", string(data))
}

func TestFetchFrameUsesBasicAuthFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bob" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	withAuth := "http://bob:secret@" + srv.Listener.Addr().String()
	data, err := FetchFrame(context.Background(), withAuth, time.Second, 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestFetchFrameRetriesOnFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("third-try"))
	}))
	defer srv.Close()

	data, err := FetchFrame(context.Background(), srv.URL, time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, "third-try", string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchFrameFailsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FetchFrame(context.Background(), srv.URL, time.Second, 2)
	assert.Error(t, err)
}
