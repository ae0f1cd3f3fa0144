package handlers

// ErrorResponse is the JSON error body returned by all handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
