package tool

import (
	"context"
	"fmt"
	"time"
)

// Error codes reported by invokers.
const (
	CodeUnknownTool      = "unknown_tool"
	CodeInvalidArguments = "invalid_arguments"
	CodeTimeout          = "timeout"
	CodeCancelled        = "cancelled"
	CodeExecutionFailed  = "execution_failed"
	CodePanic            = "panic"
	CodeUnavailable      = "unavailable"
)

// Error is a typed tool failure.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a non-retryable Error.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Result is the normalized outcome of a tool call.
type Result struct {
	OK      bool          `json:"ok"`
	Value   string        `json:"value,omitempty"`
	Err     *Error        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Success builds a successful result.
func Success(value string, latency time.Duration) Result {
	return Result{OK: true, Value: value, Latency: latency}
}

// Failure builds a failed result.
func Failure(err *Error, latency time.Duration) Result {
	return Result{Err: err, Latency: latency}
}

// ErrorText renders the failure as text, or the empty string on success.
func (r Result) ErrorText() string {
	if r.OK || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Invoker executes tools.
type Invoker interface {
	Invoke(ctx context.Context, name, args string, timeout time.Duration) Result
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, name, args string, timeout time.Duration) Result

func (f InvokerFunc) Invoke(ctx context.Context, name, args string, timeout time.Duration) Result {
	return f(ctx, name, args, timeout)
}

// ContextError maps a done context to a tool error.
func ContextError(ctx context.Context) *Error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return &Error{Code: CodeTimeout, Message: "tool call timed out", Retryable: true}
	default:
		return &Error{Code: CodeCancelled, Message: "tool call cancelled"}
	}
}
