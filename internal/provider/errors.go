package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoCredential reports passthrough mode with no client-supplied key. A
// misconfiguration signal rather than a client error; surfaced as 5xx.
var ErrNoCredential = errors.New("no API key available: set OPENAI_API_KEY or provide a key in the request")

// BackendError is a classified backend failure. Message is already
// user-facing; raw backend detail never leaks through it.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string { return e.Message }

// Classify turns any backend failure into a user-facing message with enough
// category information (invalid key, rate limit, timeout) for the client to
// decide whether to retry.
func Classify(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Message
	}
	return classifyMessage(err.Error())
}

func classifyStatus(status int, message string) string {
	switch status {
	case 401:
		return "Invalid API key. Please check your credentials."
	case 429:
		return "Rate limit exceeded. Please try again later."
	case 400:
		return "Bad request. Please check your input parameters."
	case 500:
		return "Internal server error. Please try again later."
	}
	return classifyMessage(message)
}

func classifyMessage(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "Request timeout. Please try again."
	case strings.Contains(lower, "connection"):
		return "Connection error. Please check your network."
	}
	return fmt.Sprintf("API Error: %s", message)
}
