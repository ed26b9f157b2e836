package enginedto

// Error codes used in the HTTP error envelope.
const (
	CodeValidation = "validation_error"
	CodeTimeout    = "timeout"
	CodeAnalysis   = "analysis_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
