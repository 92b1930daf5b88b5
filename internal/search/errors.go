package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/contentql/internal/domain"
)

// ErrorCode classifies search failures for transport layers.
type ErrorCode string

const (
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeScopeViolation ErrorCode = "SCOPE_VIOLATION"
	ErrCodeExecution      ErrorCode = "EXECUTION_ERROR"
)

// Issue is one rejected field of a request, addressed by its JSON path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports every structural or semantic problem found in a request.
// No query is executed when it is returned.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return "invalid search request: " + strings.Join(parts, "; ")
}

// Code returns ErrCodeValidation.
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidation }

// NewValidationError reports a single issue at path.
func NewValidationError(path, format string, args ...any) *ValidationError {
	return &ValidationError{Issues: []Issue{{Path: path, Message: fmt.Sprintf(format, args...)}}}
}

// issueList accumulates issues while walking a request.
type issueList []Issue

func (l *issueList) add(path, format string, args ...any) {
	*l = append(*l, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (l issueList) err() error {
	if len(l) == 0 {
		return nil
	}
	return &ValidationError{Issues: append([]Issue(nil), l...)}
}

// ScopeViolation means the caller's scope forbids an entity or property.
type ScopeViolation struct {
	Entity   domain.EntityType
	Property string
}

func (e *ScopeViolation) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("scope does not permit property %q on %s", e.Property, e.Entity)
	}
	if e.Entity == domain.EntityTypeAll {
		return "scope does not permit any searchable entity"
	}
	return fmt.Sprintf("scope does not permit entity %q", e.Entity)
}

// Code returns ErrCodeScopeViolation.
func (e *ScopeViolation) Code() ErrorCode { return ErrCodeScopeViolation }

// ExecutionError wraps a storage failure. Its message is safe to show to
// callers; the cause is only reachable through Unwrap for logging.
type ExecutionError struct {
	Entity domain.EntityType
	cause  error
}

// NewExecutionError wraps cause for entity.
func NewExecutionError(entity domain.EntityType, cause error) *ExecutionError {
	return &ExecutionError{Entity: entity, cause: cause}
}

func (e *ExecutionError) Error() string {
	if e.Entity == "" || e.Entity == domain.EntityTypeAll {
		return "search execution failed"
	}
	return fmt.Sprintf("search execution failed for %s", e.Entity)
}

func (e *ExecutionError) Unwrap() error { return e.cause }

// Code returns ErrCodeExecution.
func (e *ExecutionError) Code() ErrorCode { return ErrCodeExecution }

// CodeOf maps any error returned by this package to its code. Unknown errors
// are treated as execution failures.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ErrCodeExecution
}
