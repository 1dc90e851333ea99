package router

import "fmt"

// Error codes surfaced across the router boundary.
const (
	ErrUnknownGroup          = "UNKNOWN_GROUP"
	ErrUnknownOperation      = "UNKNOWN_OPERATION"
	ErrHandlerException      = "HANDLER_EXCEPTION"
	ErrInvalidDecision       = "INVALID_DECISION"
	ErrInvalidState          = "INVALID_STATE"
	ErrMaxCorrections        = "MAX_CORRECTIONS_EXCEEDED"
	ErrCorrectionAnalysis    = "CORRECTION_ANALYSIS_FAILED"
	ErrCorrectionApplication = "CORRECTION_APPLICATION_FAILED"
	ErrMissingParameters     = "MISSING_PARAMETERS"
)

// Error is a coded error a handler may return to control the error code of
// the dispatch response. Plain errors are wrapped as HANDLER_EXCEPTION.
type Error struct {
	Code    string
	Message string
	Context any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext attaches a payload the caller can act on, e.g. the remaining
// issue count on MAX_CORRECTIONS_EXCEEDED.
func (e *Error) WithContext(ctx any) *Error {
	e.Context = ctx
	return e
}
