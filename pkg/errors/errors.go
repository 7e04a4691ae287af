package errors

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Rejected state mutations
	ErrTypeValidation ErrorType = "validation"
	// Share link encoding/decoding
	ErrTypeShare ErrorType = "share"
	// Local key-value storage
	ErrTypeStorage ErrorType = "storage"
	// Remote project service
	ErrTypeNetwork ErrorType = "network"
	// Authentication against the remote service
	ErrTypeAuth ErrorType = "authentication"
	// Image upload checks
	ErrTypeUpload ErrorType = "upload"
	// Configuration errors
	ErrTypeConfig ErrorType = "configuration"
	// Generic application errors
	ErrTypeApp ErrorType = "application"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType              `json:"type"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	UserMessage string                 `json:"userMessage"`
	InternalErr error                  `json:"-"`
	Retryable   bool                   `json:"retryable"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// Is matches any AppError of the same type and code, so copies made by
// the With* helpers still compare equal to the predefined errors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

func (e *AppError) clone() *AppError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// WithContext returns a copy of the error carrying an extra context value
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	c := e.clone()
	if c.Context == nil {
		c.Context = make(map[string]interface{})
	}
	c.Context[key] = value
	return c
}

// WithUserMessage returns a copy of the error with a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	c := e.clone()
	c.UserMessage = msg
	return c
}

// WithRetryable returns a copy of the error marked (non-)retryable
func (e *AppError) WithRetryable(retryable bool) *AppError {
	c := e.clone()
	c.Retryable = retryable
	return c
}

// WithCause returns a copy of the error wrapping err
func (e *AppError) WithCause(err error) *AppError {
	c := e.clone()
	c.InternalErr = err
	return c
}

// IsRetryable checks if the error can be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// Log logs the error with its context
func (e *AppError) Log() {
	e.LogTo(log.Default())
}

// LogTo logs the error to a component logger
func (e *AppError) LogTo(l *log.Logger) {
	contextStr := ""
	if len(e.Context) > 0 {
		var parts []string
		for k, v := range e.Context {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(parts)
		contextStr = fmt.Sprintf(" [%s]", strings.Join(parts, ", "))
	}

	l.Printf("ERROR %s%s", e.Error(), contextStr)
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:        errType,
		Code:        code,
		Message:     message,
		InternalErr: err,
	}
}

// Predefined errors for common scenarios
var (
	ErrValidation = New(ErrTypeValidation, "INVALID_STATE", "state mutation rejected").
			WithUserMessage("That change could not be applied")

	ErrInvalidShareLink = New(ErrTypeShare, "INVALID_SHARE_LINK", "share payload could not be decoded").
				WithUserMessage("This invitation link is damaged or incomplete")

	ErrShareURLTooLong = New(ErrTypeShare, "SHARE_URL_TOO_LONG", "share url exceeds maximum length").
				WithUserMessage("The invitation is too large to share as a link. Try removing images")

	ErrQuotaExceeded = New(ErrTypeStorage, "QUOTA_EXCEEDED", "local storage quota exceeded").
				WithUserMessage("Local storage is full. Images were not saved")

	ErrStorageFailed = New(ErrTypeStorage, "STORAGE_FAILED", "local storage operation failed").
				WithUserMessage("Unable to save locally")

	ErrProjectNotFound = New(ErrTypeNetwork, "PROJECT_NOT_FOUND", "project not found").
				WithUserMessage("The requested project could not be found")

	ErrNetwork = New(ErrTypeNetwork, "NETWORK_ERROR", "network request failed").
			WithUserMessage("Cannot reach the server. Check your connection").
			WithRetryable(true)

	ErrAuthRequired = New(ErrTypeAuth, "AUTH_REQUIRED", "authentication required").
			WithUserMessage("Please log in to continue")

	ErrRateLimited = New(ErrTypeNetwork, "RATE_LIMITED", "too many requests").
			WithUserMessage("Too many requests. Please wait a moment").
			WithRetryable(true)

	ErrServer = New(ErrTypeNetwork, "SERVER_ERROR", "server error").
			WithUserMessage("The server had a problem. Please try again later").
			WithRetryable(true)

	ErrFileTooLarge = New(ErrTypeUpload, "FILE_TOO_LARGE", "file exceeds upload limit").
			WithUserMessage("The image is too large")

	ErrUnsupportedFileType = New(ErrTypeUpload, "UNSUPPORTED_FILE_TYPE", "unsupported file type").
				WithUserMessage("Only JPEG, PNG, GIF and WebP images are supported")

	ErrViewerMode = New(ErrTypeValidation, "VIEWER_MODE", "editing is disabled in viewer mode").
			WithUserMessage("This invitation is open read-only")

	ErrConfigLoadFailed = New(ErrTypeConfig, "CONFIG_LOAD_FAILED", "failed to load configuration").
				WithUserMessage("Configuration file could not be loaded. Using defaults")
)

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	MaxAttempts int
	// Backoff is the wait before the second attempt; it doubles after each
	// further failure. Zero retries immediately.
	Backoff time.Duration
	// ShouldRetry overrides which errors are retried. nil retries AppErrors
	// marked retryable.
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, err error)
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(maxAttempts int) *RetryHandler {
	return &RetryHandler{
		MaxAttempts: maxAttempts,
		OnRetry: func(attempt int, err error) {
			log.Printf("Retry attempt %d/%d failed: %v", attempt, maxAttempts, err)
		},
	}
}

// Execute runs a function with retry logic. Only retryable AppErrors are retried.
func (r *RetryHandler) Execute(fn func() error) error {
	return r.ExecuteContext(context.Background(), fn)
}

// ExecuteContext is Execute that stops waiting between attempts once ctx is done
func (r *RetryHandler) ExecuteContext(ctx context.Context, fn func() error) error {
	var lastErr error
	wait := r.Backoff

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !r.retryable(err) || attempt == r.MaxAttempts {
			return err
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
			wait *= 2
		}
	}

	return lastErr
}

func (r *RetryHandler) retryable(err error) bool {
	if r.ShouldRetry != nil {
		return r.ShouldRetry(err)
	}
	appErr, ok := err.(*AppError)
	return ok && appErr.IsRetryable()
}
