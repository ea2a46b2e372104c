package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code, so a wrapped error with a cause still
// answers errors.Is against the sentinel for its category.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeProviderUnavail    = "PROVIDER_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeContentFiltered    = "CONTENT_FILTERED"
	ErrCodeSchemaViolation    = "SCHEMA_VIOLATION"
	ErrCodeEmbeddingFailure   = "EMBEDDING_FAILURE"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	ErrCodeSynthesisFailure   = "SYNTHESIS_FAILURE"
	ErrCodeTimeout            = "TIMEOUT"
)

// Configuration errors abort a run before any work starts.
var (
	ErrConfiguration = NewDomainError(ErrCodeConfiguration, "invalid configuration")
)

// Provider errors cover the model endpoint shared by embedding and generation.
var (
	ErrProviderUnavailable = NewDomainError(ErrCodeProviderUnavail, "model provider unavailable")
	ErrRateLimited         = NewDomainError(ErrCodeRateLimited, "model provider rate limit exceeded")
	ErrContentFiltered     = NewDomainError(ErrCodeContentFiltered, "model provider filtered the content")
	ErrTimeout             = NewDomainError(ErrCodeTimeout, "operation timed out")
)

// Extraction and indexing errors
var (
	ErrSchemaViolation  = NewDomainError(ErrCodeSchemaViolation, "generation output does not match the record schema")
	ErrEmbeddingFailure = NewDomainError(ErrCodeEmbeddingFailure, "embedding computation failed")
)

// Store errors
var (
	ErrStoreUnavailable   = NewDomainError(ErrCodeStoreUnavailable, "knowledge store unavailable")
	ErrCollectionNotFound = NewDomainError(ErrCodeCollectionNotFound, "collection not found")
)

// Query errors
var (
	ErrSynthesisFailure = NewDomainError(ErrCodeSynthesisFailure, "answer synthesis failed")
)

// Validation errors
var (
	ErrValidation             = NewDomainError(ErrCodeValidation, "validation failed")
	ErrInvalidSourceKind      = NewDomainError(ErrCodeValidation, "invalid source kind")
	ErrInvalidViolationPolicy = NewDomainError(ErrCodeValidation, "invalid violation policy")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
)

// IsTransient reports whether the error is worth retrying with backoff.
func IsTransient(err error) bool {
	var e *DomainError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrCodeProviderUnavail, ErrCodeRateLimited, ErrCodeTimeout:
		return true
	}
	return false
}
