package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/erpkeeper/internal/common"
)

// Envelope is the uniform body of every API response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	// Warning is set when the request succeeded but a follow-up
	// notification could not be delivered.
	Warning string `json:"warning,omitempty"`
}

const internalMessage = "internal server error"

var statuses = []struct {
	err    error
	status int
}{
	{common.ErrValidation, http.StatusBadRequest},
	{common.ErrInvalidOrExpired, http.StatusBadRequest},
	{common.ErrUnauthorized, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrTokenReuse, http.StatusUnauthorized},
	{common.ErrInvalidCredentials, http.StatusUnauthorized},
	{common.ErrUnverified, http.StatusUnauthorized},
	{common.ErrNotFound, http.StatusNotFound},
	{common.ErrConflict, http.StatusConflict},
	{common.ErrRateLimited, http.StatusTooManyRequests},
	{common.ErrUpload, http.StatusInternalServerError},
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondOK(w http.ResponseWriter, status int, message string, data any, warning string) {
	respondJSON(w, status, Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
		Warning:    warning,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		if !errors.Is(err, common.ErrInternal) {
			h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		}
		message = internalMessage
	}
	respondJSON(w, status, Envelope{StatusCode: status, Message: message})
}

const maxJSONBody = 1 << 20

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body required", common.ErrValidation)
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", common.ErrValidation)
		}
		return fmt.Errorf("%w: malformed request body: %v", common.ErrValidation, err)
	}
	return nil
}
