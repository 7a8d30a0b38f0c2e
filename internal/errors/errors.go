// Package errors provides centralized error handling with component and
// category metadata for consistent logging across the pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCategory represents the type of error for better categorization.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryDatabase      ErrorCategory = "database"
	CategoryBusConnection ErrorCategory = "bus-connection"
	CategoryBusPublish    ErrorCategory = "bus-publish"
	CategoryBusConsume    ErrorCategory = "bus-consume"
	CategoryResolution    ErrorCategory = "identity-resolution"
	CategorySession       ErrorCategory = "session-tracking"
	CategoryMedia         ErrorCategory = "media-storage"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryGeneric       ErrorCategory = "generic"
)

// EnhancedError wraps an error with component, category, and context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap provides compatibility with errors.Is and errors.As.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is reports whether the target matches the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category && ee.Component == other.Component
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the error's context map.
func (ee *EnhancedError) GetContext() map[string]any {
	ctx := make(map[string]any, len(ee.Context))
	for k, v := range ee.Context {
		ctx[k] = v
	}
	return ctx
}

// ErrorBuilder provides a fluent interface for constructing enhanced errors.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates an ErrorBuilder from an existing error.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf creates an ErrorBuilder from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component tags the error with the component where it occurred.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds a key-value pair to the error context.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build constructs the final EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Is delegates to the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As delegates to the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
