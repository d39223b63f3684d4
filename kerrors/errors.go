// Package kerrors defines the error vocabulary shared by every layer
// of kubedyn: the registry, the URL convertor, the discovery
// analyzer, the transport, and the watch engine. It is kept as a leaf
// package (no dependency on the rest of the module) so that every
// other package, including the root kubedyn package, can depend on it
// without creating an import cycle — the same role
// k8s.io/apimachinery/pkg/api/errors plays for client-go.
package kerrors

import "fmt"

// Code identifies the category of a kubedyn error.
type Code string

const (
	// CodeUnknownKind means a shortKind or fullKind has no matching
	// entry in the registry.
	CodeUnknownKind Code = "UnknownKind"
	// CodeAmbiguousKind means a shortKind resolved to more than one
	// fullKind and the caller must disambiguate.
	CodeAmbiguousKind Code = "AmbiguousKind"
	// CodeTransport means the underlying HTTP/TLS exchange failed,
	// or returned a non-2xx response without a parseable JSON body.
	CodeTransport Code = "Transport"
	// CodeAPIFailure means the server returned a well-formed JSON
	// response with status=="Failure".
	CodeAPIFailure Code = "ApiFailure"
	// CodeParse means a response body or watch event record was not
	// valid JSON, or lacked a required field.
	CodeParse Code = "Parse"
	// CodeCancelled means a watch stream ended, either because the
	// peer closed it or because the caller stopped it.
	CodeCancelled Code = "Cancelled"
	// CodeInvalidArgument means the caller passed a malformed or
	// missing argument (e.g. an empty resource name) before any
	// network request was attempted.
	CodeInvalidArgument Code = "InvalidArgument"
)

// Error is the error type returned by every kubedyn operation that
// can fail. It carries a Code for programmatic dispatch, a
// human-readable Message, and an optional wrapped Cause.
type Error struct {
	Code    Code
	Message string
	Cause   error

	// Candidates is populated only for CodeAmbiguousKind: the list
	// of fullKinds the caller must choose between.
	Candidates []string

	// Reason and HTTPStatus are populated only for CodeAPIFailure,
	// mirroring the server's metav1.Status fields.
	Reason     string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("kubedyn: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("kubedyn: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, kerrors.UnknownKind("")) style comparisons
// by Code alone, ignoring Message/Cause/Candidates.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// UnknownKind builds a CodeUnknownKind error for the given kind
// identifier (short or full).
func UnknownKind(kind string) *Error {
	return &Error{Code: CodeUnknownKind, Message: fmt.Sprintf("no registered kind matches %q", kind)}
}

// AmbiguousKind builds a CodeAmbiguousKind error carrying the
// candidate fullKinds the caller must pick from.
func AmbiguousKind(shortKind string, candidates []string) *Error {
	return &Error{
		Code:       CodeAmbiguousKind,
		Message:    fmt.Sprintf("shortKind %q matches multiple kinds, pass a fullKind", shortKind),
		Candidates: candidates,
	}
}

// InvalidArgument builds a CodeInvalidArgument error.
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// Transport wraps a network/TLS failure.
func Transport(cause error) *Error {
	return &Error{Code: CodeTransport, Message: "request failed", Cause: cause}
}

// Parse wraps a JSON decoding failure.
func Parse(cause error) *Error {
	return &Error{Code: CodeParse, Message: "malformed response body", Cause: cause}
}

// Cancelled builds a CodeCancelled error describing why a watch
// stream ended.
func Cancelled(cause error) *Error {
	return &Error{Code: CodeCancelled, Message: "watch stream closed", Cause: cause}
}

// APIFailure builds a CodeAPIFailure error from a server status
// response (status=="Failure").
func APIFailure(message, reason string, httpStatus int) *Error {
	return &Error{
		Code:       CodeAPIFailure,
		Message:    message,
		Reason:     reason,
		HTTPStatus: httpStatus,
	}
}
