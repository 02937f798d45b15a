package orchestrator

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
)

type ErrorType int

const (
	ErrInput ErrorType = iota
	ErrGeneration
	ErrValidation
	ErrPersistence
	ErrChild
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrInput:
		return "Input"
	case ErrGeneration:
		return "Generation"
	case ErrValidation:
		return "Validation"
	case ErrPersistence:
		return "Persistence"
	case ErrChild:
		return "Child"
	default:
		return "Unknown"
	}
}

// JobError classifies a handler failure so the orchestrator can decide whether to retry.
type JobError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
	Stack   string
}

func NewError(errorType ErrorType, message string) *JobError {
	return &JobError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func WrapError(err error, errorType ErrorType, message string) *JobError {
	return &JobError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   err,
	}
}

func (e *JobError) Error() string {
	var parts []string
	parts = append(parts, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *JobError) Unwrap() error {
	return e.Cause
}

func (e *JobError) WithContext(key string, value any) *JobError {
	e.Context[key] = value
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether another attempt could succeed. Unclassified errors are treated
// as transient.
func IsRetryable(err error) bool {
	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		return err != nil
	}
	switch jobErr.Type {
	case ErrGeneration, ErrPersistence, ErrUnknown:
		return true
	default:
		return false
	}
}

// ErrorInfo splits err into the message and stack stored on a failed job.
func ErrorInfo(err error) (message, stack string) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		stack = jobErr.Stack
		if stack == "" {
			stack = "[" + jobErr.Type.String() + "] " + err.Error()
		}
	}
	return err.Error(), stack
}

// SafeExecute runs fn and converts a panic into an ErrUnknown error carrying the stack.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e := NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
			e.Stack = string(debug.Stack())
			err = e
		}
	}()

	return fn()
}
