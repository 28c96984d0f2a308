package web

// errors.go provides unified error responses for the status API.
//
// Every error is logged server-side with the request id and returned to
// the client as JSON carrying a stable support code. Driver messages never
// reach the client.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/rteval-parser/internal/core"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs err and writes a sanitized JSON error. Known error
// kinds override statusCode.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg, code, status := describe(err, statusCode)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// describe maps an error to a client message, support code and status.
func describe(err error, statusCode int) (string, string, int) {
	switch {
	case errors.Is(err, errBadRequest):
		return err.Error(), "VAL002", http.StatusBadRequest
	case errors.Is(err, queue.ErrJobNotFound):
		return "job not found", "QUE001", http.StatusNotFound
	case errors.Is(err, core.ErrConnection):
		return "database unavailable", core.Code(err), http.StatusServiceUnavailable
	case errors.Is(err, queue.ErrDatabase):
		return "queue lookup failed", "QUE002", statusCode
	}
	return "internal error", core.Code(err), statusCode
}
