package search

// Error codes returned to callers
const (
	CodeConfigError     = "config_error"
	CodeInvalidModel    = "invalid_model"
	CodeSessionExpired  = "session_expired"
	CodeTimeout         = "timeout"
	CodeSourcesNotFound = "session_id_not_found_or_expired"
	CodeInvalidRequest  = "invalid_request"
	CodeFetchFailed     = "fetch_failed"
	CodeMapFailed       = "map_failed"
	CodeProviderError   = "provider_error"
	CodeInternal        = "internal_error"
)

// Error is a structured failure surfaced to the caller as {error, message}
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// NewError creates a structured error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
