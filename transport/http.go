package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubedyn/kubedyn/executor"
	"github.com/kubedyn/kubedyn/kerrors"
)

// clientTimeout bounds synchronous (non-watch) requests. Watch
// requests use a context without a deadline; the server-side timeout
// is separately disabled via the "timeoutSeconds=315360000" query
// parameter the convertor appends (§4.2, §5).
const clientTimeout = 30 * time.Second

// httpExecutor is the concrete executor.Executor shipped with this
// module. It shares one *http.Client (and therefore one connection
// pool) across synchronous requests, and opens a dedicated connection
// per watch stream by virtue of DialContext-per-request being outside
// the pool's reuse window for a never-closing body — matching §5's
// requirement that "each watch session must use its own connection so
// that no synchronous request blocks a streaming read and vice versa".
type httpExecutor struct {
	creds  Credentials
	client *http.Client
	log    *slog.Logger
}

// New returns an executor.Executor that issues requests using creds.
func New(creds Credentials, opts ...Option) executor.Executor {
	e := &httpExecutor{
		creds: creds,
		client: &http.Client{
			Transport: creds.transport,
			Timeout:   clientTimeout,
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Option configures an httpExecutor at construction time.
type Option func(*httpExecutor)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *httpExecutor) { e.log = log }
}

var _ executor.Executor = (*httpExecutor)(nil)

func (e *httpExecutor) DoGet(ctx context.Context, url string) ([]byte, error) {
	return e.do(ctx, http.MethodGet, url, nil)
}

func (e *httpExecutor) DoPost(ctx context.Context, url string, body []byte) ([]byte, error) {
	return e.do(ctx, http.MethodPost, url, body)
}

func (e *httpExecutor) DoPut(ctx context.Context, url string, body []byte) ([]byte, error) {
	return e.do(ctx, http.MethodPut, url, body)
}

func (e *httpExecutor) DoDelete(ctx context.Context, url string) ([]byte, error) {
	return e.do(ctx, http.MethodDelete, url, nil)
}

func (e *httpExecutor) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, kerrors.Transport(err)
	}
	e.applyHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, kerrors.Transport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kerrors.Transport(err)
	}

	if err := checkStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}

	return data, nil
}

// OpenStream opens a long-lived GET against a watch URL. The caller
// owns the returned ReadCloser; closing it cancels the read (§5
// "Cancellation").
func (e *httpExecutor) OpenStream(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, kerrors.Transport(err)
	}
	e.applyHeaders(req)

	// Watch connections must not inherit the synchronous-request
	// timeout: the server is told to keep the stream open for ~10
	// years, and the client side must honor that.
	streamClient := &http.Client{Transport: e.client.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, kerrors.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err := checkStatus(resp.StatusCode, data); err != nil {
			return nil, err
		}
		return nil, kerrors.Transport(fmt.Errorf("unexpected status %d opening watch stream", resp.StatusCode))
	}

	return resp.Body, nil
}

func (e *httpExecutor) applyHeaders(req *http.Request) {
	for k, values := range e.creds.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}

// checkStatus implements §4.4's status=="Failure" convention, decoding
// the response body as a metav1.Status the same way client-go's REST
// client recognizes a failed call. When the body does not parse as
// JSON at all, a non-2xx HTTP status is reported as a transport
// failure instead (the server did not speak the expected protocol).
func checkStatus(httpStatus int, body []byte) error {
	var s metav1.Status
	if err := json.Unmarshal(body, &s); err != nil {
		if httpStatus < 200 || httpStatus >= 300 {
			return kerrors.Transport(fmt.Errorf("http %d: %s", httpStatus, string(body)))
		}
		return nil
	}

	if s.Status != metav1.StatusFailure {
		if httpStatus < 200 || httpStatus >= 300 {
			return kerrors.Transport(fmt.Errorf("http %d: %s", httpStatus, string(body)))
		}
		return nil
	}

	pretty, err := json.MarshalIndent(s, "", "  ")
	message := s.Message
	if err == nil {
		message = string(pretty)
	}

	return kerrors.APIFailure(message, string(s.Reason), int(s.Code))
}
