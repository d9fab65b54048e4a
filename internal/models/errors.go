// Package models defines the error taxonomy shared across LexDraft components.
package models

import "fmt"

// ValidationError reports malformed caller input (shape or enum violations).
// It is rejected locally with HTTP 400 before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigError reports a missing or unusable configuration value, such as an
// absent provider credential. Fatal, never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// ProviderError reports a non-success response or transport failure from the
// completion provider. Surfaced to the caller as HTTP 500, not retried.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "completion provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports that an expected-JSON model response was not valid JSON.
// Callers degrade to a typed sentinel rather than propagating it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse expected JSON response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TemplateLookupError reports a template store failure. Treated as "no
// template": logged and continued, never fatal to a turn.
type TemplateLookupError struct {
	DocumentType string
	Err          error
}

func (e *TemplateLookupError) Error() string {
	return fmt.Sprintf("template lookup failed for %q: %v", e.DocumentType, e.Err)
}

func (e *TemplateLookupError) Unwrap() error { return e.Err }
