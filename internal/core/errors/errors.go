package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidJsonError  = "invalid_json"
	HttpInvalidMergeError = "invalid_merge_event"
	HttpDuplicateMerge    = "duplicate_merge"
)

// ErrorResponse is the error response body for ingestion errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
