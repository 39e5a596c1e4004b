package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/videohub/internal/common"
)

// envelope is the body of every response.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

var statuses = []struct {
	err    error
	status int
}{
	{common.ErrorValidation, http.StatusBadRequest},
	{common.ErrorConflict, http.StatusConflict},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrorInternal, http.StatusInternalServerError},
}

// statusFor maps a classified error to its HTTP status. Unclassified errors
// are 500.
func statusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// messageFor returns the detail a service attached to a sentinel, or the
// sentinel text itself. 500s never carry detail.
func messageFor(err error) string {
	for _, s := range statuses {
		if !errors.Is(err, s.err) {
			continue
		}
		if s.status == http.StatusInternalServerError {
			break
		}
		if detail, ok := strings.CutPrefix(err.Error(), s.err.Error()+": "); ok && detail != "" {
			return detail
		}
		return s.err.Error()
	}
	return common.ErrorInternal.Error()
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, envelope{StatusCode: status, Message: messageFor(err)})
}

// Reject is the guard's rejection writer.
func Reject(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, err)
}
