package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures so the fallback loop and logs
// can tell transient trouble from config problems.
type ErrorKind string

const (
	ErrAuth           ErrorKind = "auth"
	ErrRateLimit      ErrorKind = "rate_limit"
	ErrServer         ErrorKind = "server_error"
	ErrTimeout        ErrorKind = "timeout"
	ErrContentBlocked ErrorKind = "content_blocked"
	ErrMalformed      ErrorKind = "malformed_response"
)

type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Detail   string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Provider, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Detail)
}

// KindFromStatus maps an HTTP status to an error kind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrRateLimit
	case status == 401 || status == 403:
		return ErrAuth
	case status >= 500:
		return ErrServer
	default:
		return ErrMalformed
	}
}

// classifyTransport turns a round-trip error into a ProviderError.
// Deadline and net timeouts count as timeouts; anything else is treated
// as the server being unreachable.
func classifyTransport(provider string, err error) *ProviderError {
	kind := ErrServer
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		kind = ErrTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Detail: err.Error()}
}

// AggregateError is raised when the primary and every fallback failed.
type AggregateError struct {
	PrimaryErr  string
	LastErr     string
	Attempts    []string
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("all AI providers failed: primary: %s; last fallback: %s", e.PrimaryErr, e.LastErr)
}
