package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"bistro/internal/middleware"
	"bistro/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, logger zerolog.Logger) {
	logger.Warn().
		Str("error", code).
		Str("message", message).
		Int("status", status).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: middleware.RequestIDFromContext(r.Context()),
	})
}

// writeDomainError renders err. Anything that is not a DomainError is an
// internal failure and is reported to the client without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	requestID := middleware.RequestIDFromContext(r.Context())

	de, ok := model.AsDomainError(err)
	if !ok || de.Kind == model.KindInternal {
		logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID).
			Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error:         model.ErrCodeInternalError,
			Message:       "Internal server error",
			CorrelationID: requestID,
		})
		return
	}

	status := statusFor(de.Kind)
	resp := model.ErrorResponse{
		Error:         de.Code,
		Message:       de.Message,
		Details:       de.Details,
		CorrelationID: requestID,
	}
	if de.Kind == model.KindBusy && de.RetryAfter > 0 {
		secs := int((de.RetryAfter + time.Second - 1) / time.Second)
		resp.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	logger.Info().
		Str("error", de.Code).
		Str("kind", de.Kind.String()).
		Int("status", status).
		Str("request_id", requestID).
		Msg("request rejected")
	writeJSON(w, status, resp)
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	case model.KindBusy:
		return http.StatusTooManyRequests
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindUnauthorised:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
