package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{401, "Invalid API key. Please check your credentials."},
		{429, "Rate limit exceeded. Please try again later."},
		{400, "Bad request. Please check your input parameters."},
		{500, "Internal server error. Please try again later."},
	}
	for _, tc := range cases {
		err := &openai.APIError{HTTPStatusCode: tc.status, Message: "backend detail"}
		if got := Classify(err); got != tc.want {
			t.Errorf("status %d: got %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestClassifyMessageCategories(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("context deadline exceeded"), "Request timeout. Please try again."},
		{errors.New("dial tcp: connection refused"), "Connection error. Please check your network."},
		{errors.New("something odd"), "API Error: something odd"},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	inner := &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
	wrapped := fmt.Errorf("calling backend: %w", inner)
	if got := Classify(wrapped); got != "Rate limit exceeded. Please try again later." {
		t.Fatalf("wrapped APIError not unwrapped: %q", got)
	}
}

func TestClassifyBackendErrorPassesMessage(t *testing.T) {
	err := &BackendError{StatusCode: 502, Message: "already classified"}
	if got := Classify(err); got != "already classified" {
		t.Fatalf("BackendError message should pass through, got %q", got)
	}
}

func TestClassifyRequestErrorStatus(t *testing.T) {
	err := &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")}
	if got := Classify(err); got != "Invalid API key. Please check your credentials." {
		t.Fatalf("RequestError 401: %q", got)
	}
}
