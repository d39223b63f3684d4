// Package watchengine implements the Watch Engine (§4.5): long-lived
// streaming consumption of a single watch URL, dispatching
// ADDED/MODIFIED/DELETED events to user callbacks in stream order,
// one at a time.
package watchengine

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/kubedyn/kubedyn/executor"
	"github.com/kubedyn/kubedyn/kerrors"
)

// EventType is the verb carried by a watch event record. It reuses
// apimachinery's watch.EventType rather than redeclaring the same
// five wire values, since the wire format (§6) is the one Kubernetes
// itself defines.
type EventType = watch.EventType

const (
	Added    = watch.Added
	Modified = watch.Modified
	Deleted  = watch.Deleted
	Bookmark = watch.Bookmark
	errorEvt = watch.Error
)

// Event is one decoded record off a watch stream.
type Event struct {
	Type   EventType
	Object map[string]any
}

// record is the raw wire shape of a watch event line (§6 "Event
// document wire format").
type record struct {
	Type   EventType      `json:"type"`
	Object map[string]any `json:"object"`
}

// Callbacks is the four-method interface a caller supplies to bind to
// a watch (§4.5): "define a callback interface the Watch Engine holds
// by value" rather than an abstract base class.
type Callbacks struct {
	OnAdded    func(obj map[string]any)
	OnModified func(obj map[string]any)
	OnDeleted  func(obj map[string]any)
	OnClose    func(err error)
}

func (c Callbacks) dispatch(ev Event) {
	switch ev.Type {
	case Added:
		if c.OnAdded != nil {
			c.OnAdded(ev.Object)
		}
	case Modified:
		if c.OnModified != nil {
			c.OnModified(ev.Object)
		}
	case Deleted:
		if c.OnDeleted != nil {
			c.OnDeleted(ev.Object)
		}
	}
}

func (c Callbacks) close(err error) {
	if c.OnClose != nil {
		c.OnClose(err)
	}
}

// Handle lets a caller cancel a running watch (§6 "watchResource(...)
// -> handle"). Stop is idempotent.
type Handle struct {
	id     uuid.UUID
	cancel context.CancelFunc
	once   sync.Once
}

// Stop cancels the watch's underlying stream, which causes the
// background reader task to observe EOF/cancellation, invoke onClose,
// and exit (§5 "Cancellation").
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
}

// ID returns the watcher's correlation identifier, used only for
// logging and metrics.
func (h *Handle) ID() uuid.UUID { return h.id }

// Watcher opens and consumes watch URLs through an executor.Executor.
// Each Start or StartOpened call runs one independent watch session on
// its own goroutine; one Watcher may run many sessions at once.
type Watcher struct {
	exec executor.Executor
	log  *slog.Logger

	onEvent func()
}

// New returns a Watcher that reads streams through exec.
func New(exec executor.Executor, opts ...Option) *Watcher {
	w := &Watcher{exec: exec, log: slog.Default()}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Option configures a Watcher at construction time.
type Option func(*Watcher)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithOnEvent registers a callback invoked once per ADDED/MODIFIED/
// DELETED event this watcher dispatches, across every watch it opens,
// letting a caller feed a metrics counter without this package
// importing one.
func WithOnEvent(fn func()) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

// Start opens url and runs the read loop on a background goroutine,
// returning immediately with a Handle the caller can Stop. Events are
// delivered to cb in stream order; the engine never calls two of cb's
// methods concurrently for this watcher (§5 "Ordering guarantees").
func (w *Watcher) Start(ctx context.Context, url string, cb Callbacks) *Handle {
	streamCtx, cancel := context.WithCancel(ctx)
	id := uuid.New()
	h := &Handle{id: id, cancel: cancel}

	go w.run(streamCtx, id, url, cb)

	return h
}

// StartOpened behaves like Start, except the initial OpenStream call
// happens synchronously: it returns that call's error directly instead
// of routing it through cb.OnClose. Callers that need to tell "the
// reconnect attempt itself failed" apart from "it connected and later
// closed" — the CRD bootstrap watcher's backoff policy, for one — use
// this instead of Start.
func (w *Watcher) StartOpened(ctx context.Context, url string, cb Callbacks) (*Handle, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := w.exec.OpenStream(streamCtx, url)
	if err != nil {
		cancel()
		return nil, err
	}

	id := uuid.New()
	h := &Handle{id: id, cancel: cancel}

	go w.consume(streamCtx, id, stream, cb)

	return h, nil
}

func (w *Watcher) run(ctx context.Context, id uuid.UUID, url string, cb Callbacks) {
	stream, err := w.exec.OpenStream(ctx, url)
	if err != nil {
		cb.close(err)
		return
	}
	w.consume(ctx, id, stream, cb)
}

func (w *Watcher) consume(ctx context.Context, id uuid.UUID, stream io.ReadCloser, cb Callbacks) {
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			w.log.Warn("watch stream parse failure, closing watcher", "watcher", id, "error", err)
			cb.close(kerrors.Parse(err))
			return
		}

		if rec.Type == Bookmark {
			continue
		}
		if rec.Type == errorEvt {
			cb.close(apiFailureFromObject(rec.Object))
			return
		}

		cb.dispatch(Event{Type: rec.Type, Object: rec.Object})
		if w.onEvent != nil {
			w.onEvent()
		}
	}

	if err := scanner.Err(); err != nil {
		cb.close(kerrors.Cancelled(err))
		return
	}
	cb.close(kerrors.Cancelled(nil))
}

// apiFailureFromObject builds an error out of an ERROR event's
// embedded status object, falling back to a generic message if the
// object does not look like a metav1.Status.
func apiFailureFromObject(obj map[string]any) error {
	message, _ := obj["message"].(string)
	reason, _ := obj["reason"].(string)
	code, _ := obj["code"].(float64)
	if message == "" {
		message = "watch stream reported an ERROR event"
	}
	return kerrors.APIFailure(message, reason, int(code))
}
