package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/logging"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, r *http.Request, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(envelope{Code: statusCode, Message: message, Data: data}); err != nil {
		logging.FromContext(r.Context()).Warn("failed to encode response", zap.Error(err))
	}
}

// respondWithError sends a JSON error envelope
func respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	respond(w, r, statusCode, message, nil)
}

// writeError maps a domain error to its status. Anything unrecognised is logged and
// reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *auth.Error
	if !errors.As(err, &domainErr) {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		respondWithError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidOTP):
		status = http.StatusBadRequest
	case domainErr.Kind == auth.KindValidation:
		status = http.StatusBadRequest
	case domainErr.Kind == auth.KindConflict:
		status = http.StatusConflict
	case domainErr.Kind == auth.KindAuthentication:
		status = http.StatusUnauthorized
	case domainErr.Kind == auth.KindForbidden:
		status = http.StatusForbidden
	case domainErr.Kind == auth.KindNotFound:
		status = http.StatusNotFound
	}
	if domainErr.Err != nil {
		logging.FromContext(r.Context()).Info("request rejected", zap.String("reason", domainErr.Message), zap.Error(domainErr.Err))
	}
	respondWithError(w, r, status, domainErr.Message)
}

// decodeJSON reads a single JSON object of at most maxBodyBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return auth.ValidationError("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return auth.ValidationError("invalid request body")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return auth.ValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return auth.ValidationError("email is invalid")
	}
	return nil
}

func required(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return auth.ValidationError(field + " is required")
	}
	return nil
}

// firstError returns the first non-nil error.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
