package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageWithAndWithoutWrappedCause(t *testing.T) {
	wrapped := Inference("face-detect failed", errors.New("timeout"))
	assert.Equal(t, "inference: face-detect failed: timeout", wrapped.Error())

	bare := NotFound("stream not found")
	assert.Equal(t, "not_found: stream not found", bare.Error())
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	e := UpstreamFetch("fetch failed", cause)
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestAsExtractsStructuredErrorThroughWrapping(t *testing.T) {
	e := BadRequest("missing hint")
	wrapped := fmt.Errorf("handler: %w", e)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindBadRequest, got.Kind)
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:  http.StatusUnauthorized,
		KindBadRequest:    http.StatusBadRequest,
		KindNotFound:      http.StatusNotFound,
		KindUpstreamFetch: http.StatusInternalServerError,
		KindInference:     http.StatusInternalServerError,
		KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestRecoverableOnlyForUpstreamAndInferenceKinds(t *testing.T) {
	assert.True(t, KindUpstreamFetch.Recoverable())
	assert.True(t, KindInference.Recoverable())
	assert.False(t, KindPersistence.Recoverable())
	assert.False(t, KindBadRequest.Recoverable())
	assert.False(t, KindInternal.Recoverable())
}
