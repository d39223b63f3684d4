// Package executor declares the Request Executor contract (§4.4): the
// thin, injected abstraction over an authenticated HTTP client that
// every other kubedyn component issues requests through. kubedyn's
// core logic never constructs an *http.Client, never loads TLS
// material, and never parses credentials — those concerns belong to
// whatever Executor implementation the caller supplies (see package
// transport for the one shipped with this module).
package executor

import (
	"context"
	"io"
)

// Executor issues authenticated HTTP requests against a single
// Kubernetes-style API server. Every method carries whatever
// credential the implementation was configured with (bearer token,
// basic auth, or mTLS material from a kubeconfig); callers never see
// that detail.
//
// Responses are returned as raw JSON bytes. The status=="Failure"
// convention belongs to the implementation (transport's checkStatus
// turns such a body into a kerrors.CodeAPIFailure error); parsing a
// successful body is left to callers (discovery and the facade), so
// that Executor stays a pure transport seam.
type Executor interface {
	// DoGet issues a GET and returns the raw response body.
	DoGet(ctx context.Context, url string) ([]byte, error)
	// DoPost issues a POST with the given JSON body and returns the
	// raw response body.
	DoPost(ctx context.Context, url string, body []byte) ([]byte, error)
	// DoPut issues a PUT with the given JSON body and returns the raw
	// response body.
	DoPut(ctx context.Context, url string, body []byte) ([]byte, error)
	// DoDelete issues a DELETE and returns the raw response body.
	DoDelete(ctx context.Context, url string) ([]byte, error)
	// OpenStream opens a long-lived GET against a watch URL and
	// returns the response body as a stream of newline-delimited JSON
	// records. The caller owns the returned ReadCloser and must Close
	// it to cancel the underlying request (§5 "Cancellation").
	OpenStream(ctx context.Context, url string) (io.ReadCloser, error)
}
