package watchengine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kubedyn/kubedyn/executor"
	"github.com/kubedyn/kubedyn/kerrors"
)

// stubExecutor serves a fixed NDJSON body (or a stream-open error)
// from OpenStream; the synchronous methods are unused by the watch
// engine and panic if ever called.
type stubExecutor struct {
	body    string
	openErr error
}

func (s *stubExecutor) DoGet(context.Context, string) ([]byte, error)          { panic("unused") }
func (s *stubExecutor) DoPost(context.Context, string, []byte) ([]byte, error) { panic("unused") }
func (s *stubExecutor) DoPut(context.Context, string, []byte) ([]byte, error)  { panic("unused") }
func (s *stubExecutor) DoDelete(context.Context, string) ([]byte, error)       { panic("unused") }

func (s *stubExecutor) OpenStream(context.Context, string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

var _ executor.Executor = (*stubExecutor)(nil)

func TestWatcher_DispatchesEventsInOrder(t *testing.T) {
	body := `{"type":"ADDED","object":{"metadata":{"name":"a"}}}
{"type":"MODIFIED","object":{"metadata":{"name":"a"}}}
{"type":"BOOKMARK","object":{}}
{"type":"DELETED","object":{"metadata":{"name":"a"}}}
`
	exec := &stubExecutor{body: body}
	w := New(exec)

	var mu sync.Mutex
	var seq []string
	done := make(chan struct{})

	cb := Callbacks{
		OnAdded:    func(map[string]any) { mu.Lock(); seq = append(seq, "added"); mu.Unlock() },
		OnModified: func(map[string]any) { mu.Lock(); seq = append(seq, "modified"); mu.Unlock() },
		OnDeleted:  func(map[string]any) { mu.Lock(); seq = append(seq, "deleted"); mu.Unlock() },
		OnClose:    func(error) { close(done) },
	}

	h := w.Start(context.Background(), "https://master/watch", cb)
	defer h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch to close")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"added", "modified", "deleted"}
	if len(seq) != len(want) {
		t.Fatalf("got %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("got %v, want %v", seq, want)
		}
	}
}

func TestWatcher_ErrorEventClosesWithAPIFailure(t *testing.T) {
	body := `{"type":"ERROR","object":{"message":"too old resource version","reason":"Expired","code":410}}
`
	exec := &stubExecutor{body: body}
	w := New(exec)

	var closeErr error
	done := make(chan struct{})
	cb := Callbacks{OnClose: func(err error) { closeErr = err; close(done) }}

	h := w.Start(context.Background(), "https://master/watch", cb)
	defer h.Stop()
	<-done

	var kerr *kerrors.Error
	if !errors.As(closeErr, &kerr) || kerr.Code != kerrors.CodeAPIFailure {
		t.Fatalf("expected ApiFailure, got %v", closeErr)
	}
	if kerr.Reason != "Expired" || kerr.HTTPStatus != 410 {
		t.Fatalf("unexpected fields: %+v", kerr)
	}
}

func TestWatcher_MalformedEventClosesWithParseError(t *testing.T) {
	exec := &stubExecutor{body: "not json\n"}
	w := New(exec)

	var closeErr error
	done := make(chan struct{})
	cb := Callbacks{OnClose: func(err error) { closeErr = err; close(done) }}

	h := w.Start(context.Background(), "https://master/watch", cb)
	defer h.Stop()
	<-done

	var kerr *kerrors.Error
	if !errors.As(closeErr, &kerr) || kerr.Code != kerrors.CodeParse {
		t.Fatalf("expected Parse, got %v", closeErr)
	}
}

func TestWatcher_OpenStreamFailureClosesImmediately(t *testing.T) {
	exec := &stubExecutor{openErr: kerrors.Transport(errors.New("dial tcp: connection refused"))}
	w := New(exec)

	var closeErr error
	done := make(chan struct{})
	cb := Callbacks{OnClose: func(err error) { closeErr = err; close(done) }}

	h := w.Start(context.Background(), "https://master/watch", cb)
	defer h.Stop()
	<-done

	var kerr *kerrors.Error
	if !errors.As(closeErr, &kerr) || kerr.Code != kerrors.CodeTransport {
		t.Fatalf("expected Transport, got %v", closeErr)
	}
}

func TestWatcher_StopCancelsContextPassedToExecutor(t *testing.T) {
	exec := &blockingExecutor{release: make(chan struct{})}
	w := New(exec)

	done := make(chan struct{})
	cb := Callbacks{OnClose: func(error) { close(done) }}

	h := w.Start(context.Background(), "https://master/watch", cb)
	h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Stop to cancel the stream and trigger onClose")
	}
}

// blockingExecutor's OpenStream blocks until its context is cancelled,
// simulating a long-poll connection that only a Stop() can interrupt.
type blockingExecutor struct {
	release chan struct{}
}

func (b *blockingExecutor) DoGet(context.Context, string) ([]byte, error)          { panic("unused") }
func (b *blockingExecutor) DoPost(context.Context, string, []byte) ([]byte, error) { panic("unused") }
func (b *blockingExecutor) DoPut(context.Context, string, []byte) ([]byte, error)  { panic("unused") }
func (b *blockingExecutor) DoDelete(context.Context, string) ([]byte, error)       { panic("unused") }

func (b *blockingExecutor) OpenStream(ctx context.Context, _ string) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, kerrors.Cancelled(ctx.Err())
}

var _ executor.Executor = (*blockingExecutor)(nil)
