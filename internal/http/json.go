package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
)

// maxJSONBody bounds request bodies accepted by DecodeJSON.
const maxJSONBody = 64 << 10

// DecodeJSON reads exactly one JSON value from the body into dst. On
// failure it writes a 400 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("request body must contain a single JSON value")
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON encodes v before touching w so an encoding failure can still
// become a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	// Field names the offending input for validation errors.
	Field string
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes the {"error","message"} envelope used by every endpoint.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}

// WriteServiceError maps a service error onto a status code and JSON envelope.
// Unclassified errors are logged and reported as 500 without their cause.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var authErr *domainauth.Error
	if errors.As(err, &authErr) {
		WriteError(w, ErrorParams{
			Code:    statusForKind(authErr.Kind),
			ErrCode: string(authErr.Kind),
			Err:     errors.New(domainauth.SafeMessage(err)),
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
		WriteError(w, ErrorParams{
			Code:    statusForAppCode(appErr.Code),
			ErrCode: string(appErr.Code),
			Err:     errors.New(appErr.Message),
			Field:   appErr.Field,
		})
		return
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: "internal_error",
		Err:     errors.New("internal server error"),
	})
}

func statusForAppCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
