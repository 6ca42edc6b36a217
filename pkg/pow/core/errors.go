package core

import (
	"fmt"
	"math"
)

// Category partitions the error code space
type Category uint8

const (
	// CategorySuccess is the state of a context after a successful call
	CategorySuccess Category = iota
	// CategoryGeneric covers failures raised by the engine itself
	CategoryGeneric
	// CategoryOpenCL carries the OpenCL runtime's own error code unmodified
	CategoryOpenCL
)

// String returns the lower-case category name
func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryGeneric:
		return "generic"
	case CategoryOpenCL:
		return "opencl"
	default:
		return "invalid error state"
	}
}

// Code is a 64-bit error code. Values at or above ErrBase belong to the engine,
// values below it are backend specific.
type Code int64

// Error codes for the engine
const (
	CodeSuccess Code = 0
	ErrBase     Code = 0x80000000

	CodeInvalidIndex         = ErrBase + 1
	CodeDriverInvalid        = ErrBase + 2
	CodeDriverInvalidType    = ErrBase + 3
	CodeDeviceInvalid        = ErrBase + 4
	CodeDeviceNotFound       = ErrBase + 5
	CodeDeviceListInvalid    = ErrBase + 6
	CodeThreadInvalidCount   = ErrBase + 7
	CodeDifficultyInvalid    = ErrBase + 8
	CodeWorkInvalidTableSize = ErrBase + 9
	CodeInsufficientMemory   = ErrBase + 10
	CodeSearchSpaceExhausted = ErrBase + 11
	CodeWorkInvalid          = ErrBase + 12

	// CodeUnknown is used for generic failures that carry no specific code
	CodeUnknown Code = math.MaxInt64
)

var codeMessages = map[Code]string{
	CodeInvalidIndex:         "Index out of bounds",
	CodeDriverInvalid:        "Invalid driver",
	CodeDriverInvalidType:    "Invalid driver type",
	CodeDeviceInvalid:        "Invalid device",
	CodeDeviceNotFound:       "Device not found",
	CodeDeviceListInvalid:    "Invalid device list",
	CodeThreadInvalidCount:   "Invalid thread count",
	CodeDifficultyInvalid:    "Invalid difficulty",
	CodeWorkInvalidTableSize: "Invalid table size",
	CodeInsufficientMemory:   "Insufficient memory available",
	CodeSearchSpaceExhausted: "Search space exhausted",
	CodeWorkInvalid:          "Invalid work",
}

// Message returns the canonical message for an engine code
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Unknown"
}

// Error is a structured error carrying a category and a code
type Error struct {
	Category Category `json:"category"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Details  string   `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Is matches errors of the same category and code, so wrapped sentinels compare equal
// regardless of details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && t.Code == e.Code
}

// NewError creates a generic engine error for code
func NewError(code Code, details ...string) error {
	err := &Error{
		Category: CategoryGeneric,
		Code:     code,
		Message:  code.Message(),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// NewOpenCLError wraps a raw OpenCL runtime code
func NewOpenCLError(code int64, message string) error {
	if message == "" {
		message = fmt.Sprintf("OpenCL error %d", code)
	}
	return &Error{
		Category: CategoryOpenCL,
		Code:     Code(code),
		Message:  message,
	}
}

// Predefined errors
var (
	ErrInvalidIndex         = NewError(CodeInvalidIndex)
	ErrDriverInvalid        = NewError(CodeDriverInvalid)
	ErrDriverInvalidType    = NewError(CodeDriverInvalidType)
	ErrDeviceInvalid        = NewError(CodeDeviceInvalid)
	ErrDeviceNotFound       = NewError(CodeDeviceNotFound)
	ErrDeviceListInvalid    = NewError(CodeDeviceListInvalid)
	ErrThreadInvalidCount   = NewError(CodeThreadInvalidCount)
	ErrDifficultyInvalid    = NewError(CodeDifficultyInvalid)
	ErrWorkInvalidTableSize = NewError(CodeWorkInvalidTableSize)
	ErrInsufficientMemory   = NewError(CodeInsufficientMemory)
	ErrSearchSpaceExhausted = NewError(CodeSearchSpaceExhausted)
	ErrWorkInvalid          = NewError(CodeWorkInvalid)
)
