package vision

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImage is returned when no image was provided.
	ErrNoImage = errors.New("no image provided")

	// ErrUnsupportedMedia is returned for images other than JPEG and PNG.
	ErrUnsupportedMedia = errors.New("unsupported image type")

	// ErrEmptyResponse is returned when the model answered without text.
	ErrEmptyResponse = errors.New("model returned no text")

	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("GOOGLE_API_KEY is not set")
)

// APIError is a non-2xx answer from the model endpoint.
type APIError struct {
	StatusCode int
	Status     string // e.g. "INVALID_ARGUMENT"
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: HTTP %d: %s", e.StatusCode, e.Message)
}

// BlockedError is returned when the prompt or answer was blocked by the
// model's safety filters.
type BlockedError struct {
	Reason string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return "gemini: response blocked: " + e.Reason
}
