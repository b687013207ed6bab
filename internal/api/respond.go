package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps err to an HTTP status and the message shown to the client.
// Not-found, provider and storage failures get a generic message.
func statusFor(err error) (int, ErrorResponse) {
	switch {
	case errs.IsAuth(err):
		return http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Action: "reauthenticate"}
	case errors.Is(err, errs.ErrRecordNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "record not found"}
	case errs.IsNotFound(err):
		// A missing credential row is reported as a missing workspace; the
		// wrapped message names the identity.
		return http.StatusNotFound, ErrorResponse{Error: "workspace not found"}
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrUnresolvedDocument):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()}
	case errors.Is(err, errs.ErrBusy):
		return http.StatusConflict, ErrorResponse{Error: "topic is being modified, retry shortly"}
	case errors.Is(err, errs.ErrDecryption):
		return http.StatusInternalServerError, ErrorResponse{Error: "stored credentials are unreadable"}
	case errors.Is(err, errs.ErrRemote):
		return http.StatusBadGateway, ErrorResponse{Error: "storage provider unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}

func respondError(w http.ResponseWriter, log *logger.Logger, err error) {
	status, body := statusFor(err)
	switch {
	case status >= 500:
		log.Error("Request failed", "status", status, "error", err)
	case status == http.StatusUnauthorized:
		log.Warn("Request requires reauthentication", "error", err)
	default:
		log.Debug("Request rejected", "status", status, "error", err)
	}
	respondJSON(w, status, body)
}

// recoverable reports whether a batch may continue after err on one item.
func recoverable(err error) bool {
	return errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrUnresolvedDocument)
}
