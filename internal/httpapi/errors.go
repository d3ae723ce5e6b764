package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Sakshee21/SafeHavenWS/internal/auth"
	"github.com/Sakshee21/SafeHavenWS/internal/guard"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

// errorCode maps a core error onto the stable taxonomy the boundary
// exposes. No raw error strings cross for unexpected failures.
func errorCode(err error) (status int, code, message string) {
	var denied *guard.DeniedError
	if errors.As(err, &denied) {
		return http.StatusForbidden, string(denied.Reason), denied.Error()
	}
	switch {
	case errors.Is(err, sos.ErrNotAuthorized):
		return http.StatusForbidden, "NotAuthorized", err.Error()
	case errors.Is(err, sos.ErrInvalidState):
		return http.StatusConflict, "InvalidState", err.Error()
	case errors.Is(err, sos.ErrAlreadyAccepted):
		return http.StatusConflict, "AlreadyAccepted", err.Error()
	case errors.Is(err, sos.ErrMustAcceptFirst):
		return http.StatusConflict, "MustAcceptFirst", err.Error()
	case errors.Is(err, sos.ErrNotFound):
		return http.StatusNotFound, "NotFound", err.Error()
	case errors.Is(err, sos.ErrValidation),
		errors.Is(err, roles.ErrUnknownRole),
		errors.Is(err, principal.ErrInvalid):
		return http.StatusBadRequest, "ValidationError", err.Error()
	case errors.Is(err, sos.ErrCommitFailed):
		return http.StatusServiceUnavailable, "CommitFailed", "ledger commit failed, retry with backoff"
	case errors.Is(err, sos.ErrSequenceConflict):
		return http.StatusServiceUnavailable, "SequenceConflict", "submission ordering conflict, retry"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "NotAuthorized", "invalid token"
	default:
		return http.StatusInternalServerError, "InternalError", "internal error"
	}
}

// handleServiceError renders a core error in the response envelope.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := errorCode(err)
	writeErrorCode(w, r, status, code, message)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	payload := map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// writeError is the shorthand for plain validation failures.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	code := "ValidationError"
	switch status {
	case http.StatusNotFound:
		code = "NotFound"
	case http.StatusUnauthorized, http.StatusForbidden:
		code = "NotAuthorized"
	case http.StatusMethodNotAllowed:
		code = "MethodNotAllowed"
	case http.StatusTooManyRequests:
		code = "RateLimited"
	case http.StatusInternalServerError:
		code = "InternalError"
	}
	writeErrorCode(w, r, status, code, msg)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
