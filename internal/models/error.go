package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeSolverFailed      = "SOLVER_FAILED"
	ErrCodeSolverTimeout     = "SOLVER_TIMEOUT"
	ErrCodeSolverUnavailable = "SOLVER_UNAVAILABLE"
	ErrCodeDecodeFailed      = "DECODE_FAILED"
	ErrCodeHistoryDisabled   = "HISTORY_DISABLED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)
