package errors

const (
	HttpInternalError          = "internal_error"
	HttpInvalidJsonError       = "invalid_json"
	HttpDuplicateSequenceError = "duplicate_sequence_number"
	HttpBatchTooLargeError     = "batch_too_large"
	HttpTagResolutionError     = "tag_resolution_failed"
	HttpNotFoundError          = "not_found"
)

// ErrorResponse is the error response body for journal API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
