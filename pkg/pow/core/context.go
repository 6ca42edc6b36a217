package core

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const successMessage = "success"

// ErrorContext holds the outcome of the last fallible call made with it.
// Every call overwrites the previous state. A context must not be shared by
// two operations running at the same time.
type ErrorContext struct {
	mu       sync.Mutex
	id       string
	category Category
	code     Code
	message  string
	closed   bool
}

// NewErrorContext creates a context in the success state
func NewErrorContext() *ErrorContext {
	return &ErrorContext{
		id:       uuid.NewString(),
		category: CategorySuccess,
		code:     CodeSuccess,
		message:  successMessage,
	}
}

// ID identifies the session in logs
func (c *ErrorContext) ID() string {
	return c.id
}

// LogField returns the session id as a zap field
func (c *ErrorContext) LogField() zap.Field {
	return zap.String("session", c.id)
}

// Reset clears the context back to success
func (c *ErrorContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.category = CategorySuccess
	c.code = CodeSuccess
	c.message = successMessage
}

// Set records err. A nil err resets the context. Engine errors keep their
// category and code; anything else becomes a generic error with CodeUnknown.
func (c *ErrorContext) Set(err error) {
	if err == nil {
		c.Reset()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var engineErr *Error
	if errors.As(err, &engineErr) {
		c.category = engineErr.Category
		c.code = engineErr.Code
		c.message = engineErr.Message
		return
	}

	c.category = CategoryGeneric
	c.code = CodeUnknown
	c.message = err.Error()
}

// Failed reports whether the last call failed
func (c *ErrorContext) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code != CodeSuccess
}

// ErrorCode returns the code of the last call
func (c *ErrorContext) ErrorCode() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.code)
}

// ErrorCategory returns the category of the last call
func (c *ErrorContext) ErrorCategory() Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category
}

// CategoryString returns the category of the last call as text
func (c *ErrorContext) CategoryString() string {
	return c.ErrorCategory().String()
}

// ErrorString returns the message of the last call
func (c *ErrorContext) ErrorString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.message == "" {
		return "Unknown error"
	}
	return c.message
}

// ErrorStringInto copies the message into buf, truncating to its capacity,
// and returns the number of bytes written.
func (c *ErrorContext) ErrorStringInto(buf []byte) int {
	return copy(buf[:cap(buf)], c.ErrorString())
}

// Err returns the recorded failure as an error, or nil on success
func (c *ErrorContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code == CodeSuccess {
		return nil
	}
	return &Error{Category: c.category, Code: c.code, Message: c.message}
}

// Close ends the session. Closing twice is a no-op.
func (c *ErrorContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close has been called
func (c *ErrorContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
