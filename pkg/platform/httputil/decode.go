package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

// Preparer is a request body that cleans up and checks its own fields.
// Sanitize and Normalize run before Validate.
type Preparer interface {
	Sanitize()
	Normalize()
	Validate() error
}

// DecodeAndPrepare reads a single JSON object from r into a new T and
// prepares it. On failure the error response is already written and ok is false.
//
//	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger)
//	if !ok {
//		return
//	}
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparer
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (PT, bool) {
	ctx := r.Context()
	req := PT(new(T))

	if err := decodeBody(r.Body, req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request_too_large"})
			return nil, false
		}
		WriteError(w, err)
		return nil, false
	}

	req.Sanitize()
	req.Normalize()
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
		return nil, false
	}
	return req, true
}

func decodeBody(body io.Reader, into any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		default:
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeBadRequest, "request body must hold a single JSON object")
	}
	return nil
}
