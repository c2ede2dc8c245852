// Package errors defines custom error types for direwatch
package errors

import (
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ConfigError indicates configuration issues, fatal at load time
	ConfigError ErrorType = "config"
	// WatchError indicates watch registration/removal issues, isolated
	// to the affected subtree
	WatchError ErrorType = "watch"
	// ExecError indicates command spawn or execution issues
	ExecError ErrorType = "exec"
	// SourceError indicates event source issues such as a dropped or
	// overflowed kernel event queue
	SourceError ErrorType = "source"
)

// DireError is the base error type for all direwatch errors
type DireError struct {
	Type    ErrorType
	Message string
	Err     error
	Job     string
	Context map[string]interface{}
}

// Error implements the error interface
func (e *DireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *DireError) Unwrap() error {
	return e.Err
}

// WithJob tags the error with the owning job's name
func (e *DireError) WithJob(job string) *DireError {
	e.Job = job
	return e
}

// WithContext adds context to the error
func (e *DireError) WithContext(key string, value interface{}) *DireError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new DireError
func New(errType ErrorType, message string, err error) *DireError {
	return &DireError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsConfigError checks if the error is a configuration error
func IsConfigError(err error) bool {
	if de, ok := err.(*DireError); ok {
		return de.Type == ConfigError
	}
	return false
}

// IsWatchError checks if the error is a watch error
func IsWatchError(err error) bool {
	if de, ok := err.(*DireError); ok {
		return de.Type == WatchError
	}
	return false
}

// IsExecError checks if the error is an execution error
func IsExecError(err error) bool {
	if de, ok := err.(*DireError); ok {
		return de.Type == ExecError
	}
	return false
}

// IsSourceError checks if the error is an event source error
func IsSourceError(err error) bool {
	if de, ok := err.(*DireError); ok {
		return de.Type == SourceError
	}
	return false
}

// Constructor functions for each error type

// NewConfigError creates a new configuration error
func NewConfigError(message string, err error) *DireError {
	return New(ConfigError, message, err)
}

// NewWatchError creates a new watch error
func NewWatchError(message string, err error) *DireError {
	return New(WatchError, message, err)
}

// NewExecError creates a new execution error
func NewExecError(message string, err error) *DireError {
	return New(ExecError, message, err)
}

// NewSourceError creates a new event source error
func NewSourceError(message string, err error) *DireError {
	return New(SourceError, message, err)
}
