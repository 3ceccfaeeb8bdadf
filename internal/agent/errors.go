package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for turn orchestration
var (
	// ErrNoInvoker indicates no model invoker is configured
	ErrNoInvoker = errors.New("no model invoker configured")

	// ErrCapabilityNotFound indicates a requested capability doesn't exist
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrToolTimeout indicates a capability execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a capability panicked during execution
	ErrToolPanic = errors.New("tool panicked")
)

// ToolErrorType categorizes capability execution errors for retry logic
// and user-facing messaging.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable returns true if this error type suggests retrying the
// operation may succeed.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured error from capability execution. Validation
// failures, handler errors, and unknown-capability lookups all surface as
// ToolError values so the turn loop can fold them into tool results
// instead of aborting.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))

	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}

	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError with automatic classification inferred
// from the cause's error message.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     ToolErrorUnknown,
		Attempts: 1,
	}

	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
		err.Retryable = err.Type.IsRetryable()
	}

	return err
}

// WithType sets the error type and updates retryable status accordingly.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

// WithToolCallID sets the call ID for correlating errors with specific calls.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// WithMessage sets a custom human-readable error message.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

// WithAttempts sets the number of execution attempts that were made.
func (e *ToolError) WithAttempts(n int) *ToolError {
	e.Attempts = n
	return e
}

// classifyToolError determines the error type from the error content.
func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}

	if errors.Is(err, ErrCapabilityNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") {
		return ToolErrorTimeout
	}

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "refused") ||
		strings.Contains(errStr, "unreachable") {
		return ToolErrorNetwork
	}

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return ToolErrorRateLimit
	}

	if strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "validation") ||
		strings.Contains(errStr, "required") ||
		strings.Contains(errStr, "missing") {
		return ToolErrorInvalidInput
	}

	return ToolErrorExecution
}

// GetToolError extracts a ToolError from an error chain using errors.As.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// IsToolRetryable checks if a tool error should be retried based on its type.
func IsToolRetryable(err error) bool {
	if toolErr, ok := GetToolError(err); ok {
		return toolErr.Retryable
	}
	return classifyToolError(err).IsRetryable()
}

// ModelErrorCategory classifies model invocation failures so the turn can
// end with a stable, user-safe message while the raw error stays in logs.
type ModelErrorCategory string

const (
	ModelErrorAuth         ModelErrorCategory = "auth"
	ModelErrorTimeout      ModelErrorCategory = "timeout"
	ModelErrorConnectivity ModelErrorCategory = "connectivity"
	ModelErrorGeneric      ModelErrorCategory = "generic"
)

// ModelError wraps a provider failure with its category.
type ModelError struct {
	Category ModelErrorCategory
	Cause    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model invocation failed (%s): %v", e.Category, e.Cause)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the fixed user-facing text for the error category.
// Raw provider errors are never shown to the user.
func (e *ModelError) UserMessage() string {
	switch e.Category {
	case ModelErrorAuth:
		return "Authentication error. Please try logging in again."
	case ModelErrorTimeout:
		return "The request timed out. Please try again."
	case ModelErrorConnectivity:
		return "Connection error. Please check your internet connection and try again."
	default:
		return "I encountered an error processing your request. Please try again."
	}
}

// NewModelError classifies a provider error by its message content.
func NewModelError(cause error) *ModelError {
	e := &ModelError{Category: ModelErrorGeneric, Cause: cause}
	if cause == nil {
		return e
	}

	errStr := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "api key"):
		e.Category = ModelErrorAuth
	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded"):
		e.Category = ModelErrorTimeout
	case strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "refused") ||
		strings.Contains(errStr, "unreachable"):
		e.Category = ModelErrorConnectivity
	}
	return e
}

// TurnError represents an error during turn processing with context about
// which phase and round it occurred in.
type TurnError struct {
	Phase   TurnPhase
	Round   int
	Message string
	Cause   error
}

func (e *TurnError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("turn error at %s (round %d): %s", e.Phase, e.Round, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("turn error at %s (round %d): %v", e.Phase, e.Round, e.Cause)
	}
	return fmt.Sprintf("turn error at %s (round %d)", e.Phase, e.Round)
}

func (e *TurnError) Unwrap() error {
	return e.Cause
}

// TurnPhase represents a distinct phase in the turn lifecycle.
type TurnPhase string

const (
	PhaseInit     TurnPhase = "init"
	PhaseInvoke   TurnPhase = "invoke"
	PhaseDispatch TurnPhase = "dispatch"
	PhaseComplete TurnPhase = "complete"
)
