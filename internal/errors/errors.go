// Package errors provides structured error handling for pathorama operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"

	// Probe and scanning errors.
	CodeNetwork       ErrorCode = "NETWORK"
	CodeTargetInvalid ErrorCode = "TARGET_INVALID"
	CodeScanFailed    ErrorCode = "SCAN_FAILED"

	// Dictionary errors.
	CodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	CodeFilePermission   ErrorCode = "FILE_PERMISSION"
	CodeDictionaryEmpty  ErrorCode = "DICTIONARY_EMPTY"
	CodeDictionaryDecode ErrorCode = "DICTIONARY_DECODE"

	// Lifecycle errors.
	CodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	CodeNotRunning     ErrorCode = "NOT_RUNNING"
)

// coded is implemented by every error type in this package.
type coded interface {
	error
	ErrorCode() ErrorCode
}

// ScanError represents an error that occurred during scanning operations.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *ScanError) ErrorCode() ErrorCode {
	return e.Code
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// DictionaryError represents a failure to load a path dictionary.
type DictionaryError struct {
	Code     ErrorCode
	Message  string
	Path     string
	Encoding string
	Cause    error
}

// Error implements the error interface.
func (e *DictionaryError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DictionaryError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *DictionaryError) ErrorCode() ErrorCode {
	return e.Code
}

// IsFatal reports whether the dictionary could not be read at all, as opposed
// to being readable but yielding no usable paths.
func (e *DictionaryError) IsFatal() bool {
	return e.Code == CodeFileNotFound || e.Code == CodeFilePermission
}

// NewDictionaryError creates a new dictionary error.
func NewDictionaryError(code ErrorCode, message, path string) *DictionaryError {
	return &DictionaryError{
		Code:    code,
		Message: message,
		Path:    path,
	}
}

// WrapDictionaryError wraps an existing error as a dictionary error.
func WrapDictionaryError(code ErrorCode, message, path string, err error) *DictionaryError {
	return &DictionaryError{
		Code:    code,
		Message: message,
		Path:    path,
		Cause:   err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *ConfigError) ErrorCode() ErrorCode {
	return e.Code
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// LifecycleError reports an invalid start/stop transition.
type LifecycleError struct {
	Code      ErrorCode
	Component string
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	switch e.Code {
	case CodeAlreadyRunning:
		return fmt.Sprintf("[%s] %s is already running", e.Code, e.Component)
	case CodeNotRunning:
		return fmt.Sprintf("[%s] %s is not running", e.Code, e.Component)
	}
	return fmt.Sprintf("[%s] %s lifecycle error", e.Code, e.Component)
}

// ErrorCode returns the error code.
func (e *LifecycleError) ErrorCode() ErrorCode {
	return e.Code
}

// Is matches lifecycle errors by code so callers can compare against the
// ErrAlreadyRunning/ErrNotRunning helpers with errors.Is.
func (e *LifecycleError) Is(target error) bool {
	t, ok := target.(*LifecycleError)
	return ok && t.Code == e.Code
}

// Utility functions for common error operations

// IsCode checks if an error, or any error it wraps, has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var c coded
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeNetwork:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a fatal condition that should stop execution.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodePermission, CodeConfiguration, CodeFileNotFound, CodeFilePermission:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeTargetInvalid, "Invalid target URL", target, err)
}

// ErrDictionaryEmpty creates an error for a dictionary that yielded no paths.
func ErrDictionaryEmpty(path, encoding string) *DictionaryError {
	e := NewDictionaryError(CodeDictionaryEmpty, "Dictionary contains no usable paths", path)
	e.Encoding = encoding
	return e
}

// ErrDictionaryDecode creates an error for a dictionary no candidate encoding could decode.
func ErrDictionaryDecode(path string) *DictionaryError {
	return NewDictionaryError(CodeDictionaryDecode, "Dictionary could not be decoded", path)
}

// ErrAlreadyRunning creates an error for starting a running component.
func ErrAlreadyRunning(component string) *LifecycleError {
	return &LifecycleError{Code: CodeAlreadyRunning, Component: component}
}

// ErrNotRunning creates an error for stopping a stopped component.
func ErrNotRunning(component string) *LifecycleError {
	return &LifecycleError{Code: CodeNotRunning, Component: component}
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}
