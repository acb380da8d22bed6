package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/homefs/internal/logger"
	"github.com/marmos91/homefs/pkg/fserr"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// statusOf maps a homefs error code to an HTTP status.
func statusOf(code fserr.ErrorCode) int {
	switch code {
	case fserr.CodeNotAuthenticated, fserr.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case fserr.CodeAdminForbidden, fserr.CodeAccessDenied, fserr.CodePermissionDenied:
		return http.StatusForbidden
	case fserr.CodeNotFound, fserr.CodeUnknownUser:
		return http.StatusNotFound
	case fserr.CodeDuplicateAccount, fserr.CodeAlreadyExists, fserr.CodeAlreadyAuthenticated:
		return http.StatusConflict
	case fserr.CodeQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case fserr.CodeLimitBelowUsage, fserr.CodeInvalidArgument, fserr.CodeReservedName:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Debug("API response encode failed: %v", err)
	}
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// writeError renders err. Domain errors keep their message; anything else is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, err error) {
	var fe *fserr.Error
	if !errors.As(err, &fe) {
		logger.Error("API internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal error", Code: "Internal"})
		return
	}

	status := statusOf(fe.Code)
	if status == http.StatusInternalServerError {
		logger.Error("API storage error: %v", err)
	}
	writeJSON(w, status, Response{Message: err.Error(), Code: fe.Code.String()})
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Message: message})
}

// decode reads a JSON body into T. Unknown fields are rejected.
func decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
