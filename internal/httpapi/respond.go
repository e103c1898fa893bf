package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Kocoro-lab/Shannon/go/research/internal/search"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case search.CodeInvalidRequest, search.CodeInvalidModel:
		return http.StatusBadRequest
	case search.CodeSessionExpired, search.CodeSourcesNotFound:
		return http.StatusNotFound
	case search.CodeConfigError:
		return http.StatusServiceUnavailable
	case search.CodeTimeout:
		return http.StatusGatewayTimeout
	case search.CodeProviderError, search.CodeFetchFailed, search.CodeMapFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendError writes {error, message} merged over the fields of partial, so
// callers still see e.g. the session_id allocated before the failure
func (h *ResearchHandler) sendError(w http.ResponseWriter, err error, partial interface{}) {
	var se *search.Error
	if !errors.As(err, &se) {
		h.logger.Error("Unexpected research error", zap.Error(err))
		se = search.NewError(search.CodeInternal, "internal error")
	}

	body := map[string]interface{}{}
	if partial != nil {
		if raw, mErr := json.Marshal(partial); mErr == nil {
			_ = json.Unmarshal(raw, &body)
		}
	}
	body["error"] = se.Code
	body["message"] = se.Message
	writeJSON(w, statusFor(se.Code), body)
}

// decode reads a JSON request body; false means a response was written
func (h *ResearchHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: search.CodeInvalidRequest, Message: "invalid JSON body"})
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// WithRequestLogging assigns a request id and logs each request on completion
func WithRequestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("HTTP request failed", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	})
}
