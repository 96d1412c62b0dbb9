package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/Stewz00/apisecure/internal/service"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// MessageResponse acknowledges a request that returns no data.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Helper function to send JSON error responses
func sendJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{Error: message})
}

// writeServiceError maps an account service error onto a status code.
// Unexpected errors are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Issues: verr.Issues})
	case errors.Is(err, service.ErrInvalidOrExpiredToken), errors.Is(err, service.ErrEmailTaken):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidCredentials):
		sendJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrUserNotFound):
		sendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrRateLimited):
		sendJSONError(w, err.Error(), http.StatusTooManyRequests)
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": chimiddleware.GetReqID(r.Context()),
		}).Error("request failed")
		sendJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body into v, answering 400 itself when it cannot.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// clientIP is the caller's address without port, as set by chi's RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
