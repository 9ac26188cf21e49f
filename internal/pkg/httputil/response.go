package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

// MaxBodyBytes bounds request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the error envelope for every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes an error envelope. The request id set by chi's RequestID
// middleware is echoed when r is non-nil.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := ErrorResponse{Error: message, Code: code}
	if r != nil {
		resp.RequestID = middleware.GetReqID(r.Context())
	}
	JSON(w, status, resp)
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusBadRequest, "bad_request", message)
}

// Unprocessable writes a 422 error for well-formed input the pipeline rejects.
func Unprocessable(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusUnprocessableEntity, "unprocessable", message)
}

// InternalError logs err and writes a generic 500.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	fields := []interface{}{"error", err}
	if r != nil {
		fields = append(fields, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	}
	logger.Error("httputil: internal error", fields...)
	Error(w, r, http.StatusInternalServerError, "internal", "internal server error")
}

// Decode reads one JSON value from the request body into dst. On failure it
// writes a 400 and returns false. An empty body decodes to the zero value
// when allowEmpty is set.
func Decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		BadRequest(w, r, "invalid JSON: "+err.Error())
		return false
	}
	if dec.More() {
		BadRequest(w, r, "invalid JSON: trailing data after body")
		return false
	}
	return true
}
