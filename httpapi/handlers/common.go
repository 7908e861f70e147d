package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/httpapi"
)

// Response is an alias for httpapi.Response, the canonical API envelope.
type Response = httpapi.Response

// ErrorInfo is an alias for httpapi.ErrorInfo, the canonical error shape.
type ErrorInfo = httpapi.ErrorInfo

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return
	}
}

// WriteSuccess writes a successful response envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteError writes an error response envelope from a domain *errs.Error.
func WriteError(w http.ResponseWriter, err *errs.Error, logger *zap.Logger) {
	status := errs.HTTPStatus(err.Kind)

	errorInfo := &ErrorInfo{
		Code:       string(err.Kind),
		Message:    err.Message,
		Action:     string(err.Action),
		HTTPStatus: status,
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     errorInfo,
		Timestamp: time.Now(),
	})
}

// WriteAnyError writes an error response, translating a plain error into
// a runtime-kind *errs.Error if it isn't already one.
func WriteAnyError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var domainErr *errs.Error
	if e, ok := err.(*errs.Error); ok {
		domainErr = e
	} else {
		domainErr = errs.Wrap(errs.Runtime, err, "unexpected internal error")
	}
	WriteError(w, domainErr, logger)
}

// WriteErrorMessage writes a simple error message of the given kind.
func WriteErrorMessage(w http.ResponseWriter, kind errs.Kind, message string, logger *zap.Logger) {
	WriteError(w, errs.New(kind, message), logger)
}

// DecodeJSONBody decodes a JSON request body, rejecting unknown fields and
// capping the body at 1 MB.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := errs.New(errs.InvalidArgument, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := errs.Wrap(errs.InvalidArgument, err, "invalid JSON body")
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType validates the request's Content-Type is
// application/json, using mime.ParseMediaType to tolerate case variants
// and extra parameters (e.g. "application/json; charset=UTF-8").
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := errs.New(errs.InvalidArgument, "Content-Type must be application/json")
		WriteError(w, apiErr, logger)
		return false
	}
	return true
}

// ValidateURL validates that s is a well-formed HTTP or HTTPS URL.
func ValidateURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateEnum checks whether value is one of the allowed values.
func ValidateEnum(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// ValidateNonNegative checks that value is >= 0.
func ValidateNonNegative(value float64) bool {
	return value >= 0
}

// ResponseWriter wraps http.ResponseWriter to capture the status code and
// byte count written, for logging and metrics middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
	Written    bool
}

// NewResponseWriter builds a ResponseWriter.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader records the first status code written.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write marks the response as written, defaulting to 200 if WriteHeader
// was never called explicitly.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += n
	return n, err
}

// Flush implements http.Flusher, delegating to the wrapped writer when it
// supports it. Needed so SSE/streaming handlers still flush through a
// ResponseWriter-wrapping middleware.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
