package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "legitify/pkg/domain-errors"
)

type noteRequest struct {
	Email string `json:"email"`
	Note  string `json:"note"`
	calls []string
}

func (r *noteRequest) Sanitize() {
	r.calls = append(r.calls, "sanitize")
	r.Email = strings.TrimSpace(r.Email)
}

func (r *noteRequest) Normalize() {
	r.calls = append(r.calls, "normalize")
	r.Email = strings.ToLower(r.Email)
}

func (r *noteRequest) Validate() error {
	r.calls = append(r.calls, "validate")
	switch {
	case r.Email == "":
		return errors.New("email is required")
	case r.Note == "forbidden":
		return dErrors.New(dErrors.CodeForbidden, "note not allowed")
	}
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func decode(t *testing.T, body io.Reader) (*noteRequest, *httptest.ResponseRecorder, bool) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/notes", body)
	req, ok := DecodeAndPrepare[noteRequest](w, r, discard)
	return req, w, ok
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("prepares in order", func(t *testing.T) {
		req, _, ok := decode(t, strings.NewReader(`{"email":"  Alice@Example.COM "}`))
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", req.Email)
		assert.Equal(t, []string{"sanitize", "normalize", "validate"}, req.calls)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, w, ok := decode(t, strings.NewReader(`{"email":`))
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid request body", errorBody(t, w)["error_description"])
	})

	t.Run("empty body", func(t *testing.T) {
		_, w, ok := decode(t, strings.NewReader(""))
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "request body is required", errorBody(t, w)["error_description"])
	})

	t.Run("trailing document", func(t *testing.T) {
		_, w, ok := decode(t, strings.NewReader(`{"email":"a@b.io"} {"email":"c@d.io"}`))
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("plain validation error", func(t *testing.T) {
		_, w, ok := decode(t, strings.NewReader(`{"note":"hi"}`))
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := errorBody(t, w)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "email is required", body["error_description"])
	})

	t.Run("domain error keeps its code", func(t *testing.T) {
		_, w, ok := decode(t, strings.NewReader(`{"email":"a@b.io","note":"forbidden"}`))
		assert.False(t, ok)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("body over the limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(`{"email":"`+strings.Repeat("a", 64)+`"}`))
		r.Body = http.MaxBytesReader(w, r.Body, 16)

		_, ok := DecodeAndPrepare[noteRequest](w, r, discard)
		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
