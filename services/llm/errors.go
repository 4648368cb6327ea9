package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// FailureClass categorizes upstream failures so callers can decide on
// retry behavior and so the history ledger can aggregate error counts.
type FailureClass string

const (
	FailureQuota   FailureClass = "quota_exceeded"
	FailureNetwork FailureClass = "network_timeout"
	FailureAuth    FailureClass = "authentication_failure"
	FailureUnknown FailureClass = "unknown"
)

// UpstreamError wraps a backend error with its failure class.
type UpstreamError struct {
	Class FailureClass
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream failure (%s, model=%s): %v", e.Class, e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Classify wraps err as an UpstreamError, inspecting the concrete backend
// error types to derive the failure class. A nil err returns nil.
func Classify(model string, err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Class: classOf(err), Model: model, Err: err}
}

func classOf(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classFromStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classFromStatus(reqErr.HTTPStatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return classFromStatus(genaiErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	return FailureUnknown
}

func classFromStatus(status int) FailureClass {
	switch status {
	case http.StatusTooManyRequests:
		return FailureQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout, http.StatusServiceUnavailable:
		return FailureNetwork
	default:
		return FailureUnknown
	}
}

// ClassOf extracts the failure class from an error chain, returning
// FailureUnknown for errors that are not UpstreamErrors.
func ClassOf(err error) FailureClass {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Class
	}
	return FailureUnknown
}
