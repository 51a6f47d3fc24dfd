// Package errors provides the structured error taxonomy shared by every
// stage of ingestion and retrieval, plus the retry and circuit-breaker
// helpers components use around their external collaborators.
package errors

import "fmt"

// Kind classifies an error by how the orchestrating caller should react to
// it: validation errors surface immediately, resource exhaustion and
// transient transport errors are retried at task level, corruption is
// recovered locally by invalidate-and-rebuild, model unavailability
// degrades gracefully, and fatal errors terminate the task.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindResourceExhaustion Kind = "resource_exhaustion"
	KindTransientTransport Kind = "transient_transport"
	KindCorruption         Kind = "corruption"
	KindModelUnavailable   Kind = "model_unavailable"
	KindFatal              Kind = "fatal"
)

// retryableKinds are retried at the task level by the caller's retry policy.
var retryableKinds = map[Kind]bool{
	KindResourceExhaustion: true,
	KindTransientTransport: true,
}

// RetrievalError is the error type threaded through every component.
type RetrievalError struct {
	Kind       Kind
	Message    string
	Details    map[string]string
	Cause      error
	Suggestion string
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is matches another *RetrievalError by Kind.
func (e *RetrievalError) Is(target error) bool {
	t, ok := target.(*RetrievalError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *RetrievalError) WithDetail(key, value string) *RetrievalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable suggestion and returns the error for
// chaining.
func (e *RetrievalError) WithSuggestion(s string) *RetrievalError {
	e.Suggestion = s
	return e
}

// New creates a RetrievalError of the given kind.
func New(kind Kind, message string, cause error) *RetrievalError {
	return &RetrievalError{Kind: kind, Message: message, Cause: cause}
}

// Wrap creates a RetrievalError from an existing error, or returns nil if
// err is nil.
func Wrap(kind Kind, err error) *RetrievalError {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

// Validation constructs a KindValidation error — surfaced immediately, never
// retried.
func Validation(message string, cause error) *RetrievalError {
	return New(KindValidation, message, cause)
}

// ResourceExhaustion constructs a KindResourceExhaustion error — pool-borrow
// or external-service timeouts.
func ResourceExhaustion(message string, cause error) *RetrievalError {
	return New(KindResourceExhaustion, message, cause)
}

// TransientTransport constructs a KindTransientTransport error — connection
// resets, 5xx responses.
func TransientTransport(message string, cause error) *RetrievalError {
	return New(KindTransientTransport, message, cause)
}

// Corruption constructs a KindCorruption error — the caller is expected to
// recover locally via invalidate-and-rebuild and never surface this upward.
func Corruption(message string, cause error) *RetrievalError {
	return New(KindCorruption, message, cause)
}

// ModelUnavailable constructs a KindModelUnavailable error — the keyword
// extractor's only recoverable-by-degrading kind.
func ModelUnavailable(message string, cause error) *RetrievalError {
	return New(KindModelUnavailable, message, cause)
}

// Fatal constructs a KindFatal error — unsupported extension, zero-byte
// parse, persistence failure after retries exhausted.
func Fatal(message string, cause error) *RetrievalError {
	return New(KindFatal, message, cause)
}

// IsRetryable reports whether err (if a *RetrievalError) belongs to a kind
// the task-level retry policy should retry.
func IsRetryable(err error) bool {
	re, ok := err.(*RetrievalError)
	if !ok {
		return false
	}
	return retryableKinds[re.Kind]
}

// IsFatal reports whether err (if a *RetrievalError) is KindFatal.
func IsFatal(err error) bool {
	re, ok := err.(*RetrievalError)
	if !ok {
		return false
	}
	return re.Kind == KindFatal
}

// GetKind extracts the Kind from err, or "" if it is not a *RetrievalError.
func GetKind(err error) Kind {
	if re, ok := err.(*RetrievalError); ok {
		return re.Kind
	}
	return ""
}
