package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sozercan/gee-gateway/apimodels"
	"github.com/sozercan/gee-gateway/internal/analyzer"
	"github.com/sozercan/gee-gateway/internal/imagery"
	"github.com/sozercan/gee-gateway/internal/logging"
	"github.com/sozercan/gee-gateway/internal/validation"
)

// Error codes carried in the JSON error body.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNoImagery        = "NO_IMAGERY"
	CodeNoData           = "NO_DATA"
	CodeUpstreamError    = "UPSTREAM_ERROR"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
		status = http.StatusInternalServerError
		data = encodeFailure(r, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// encodeFailure is the error body sent when a response cannot be encoded.
func encodeFailure(r *http.Request, err error) []byte {
	data, marshalErr := json.Marshal(apimodels.ErrorResponse{
		Error:     fmt.Sprintf("encode response: %v", err),
		Code:      CodeUpstreamError,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
	if marshalErr != nil {
		return []byte(`{"error":"encode response","code":"` + CodeUpstreamError + `"}`)
	}
	return data
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, apimodels.ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, analyzer.ErrInvalidInput), errors.Is(err, imagery.ErrInvalidRegion):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, analyzer.ErrNoImagery):
		return http.StatusNotFound, CodeNoImagery
	case errors.Is(err, analyzer.ErrNoData):
		return http.StatusNotFound, CodeNoData
	default:
		return http.StatusInternalServerError, CodeUpstreamError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("code", code).Str("path", r.URL.Path).Msg("Analysis request failed")

	writeErrorCode(w, r, status, code, err.Error())
}
