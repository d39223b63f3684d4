package watchengine

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kubedyn/kubedyn/convertor"
	"github.com/kubedyn/kubedyn/discovery"
	"github.com/kubedyn/kubedyn/registry"
)

// crdFullKind is the fixed fullKind the CRD bootstrap watcher binds
// to (§4.6).
const crdFullKind = "apiextensions.k8s.io.CustomResourceDefinition"

// reconnectBaseDelay and reconnectMaxDelay bound the CRD watcher's
// self-healing backoff (§4.6 onClose, §9 "CRD bootstrap reconnect
// backoff is capped and jittered").
const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
)

// CRDBootstrapWatcher is a Watcher instance bound to the
// CustomResourceDefinition kind (§4.6): ADDED events trigger targeted
// discovery of the CRD's group/version, DELETED events remove the
// kind from the Registry, and a closed stream is reopened for as long
// as Run's context lives: immediately after a close, with capped,
// jittered backoff only while opening fails.
type CRDBootstrapWatcher struct {
	watcher  *Watcher
	conv     *convertor.Convertor
	reg      *registry.Registry
	analyzer *discovery.Analyzer
	log      *slog.Logger

	onReconnect func()
}

// CRDOption configures a CRDBootstrapWatcher at construction time.
type CRDOption func(*CRDBootstrapWatcher)

// WithOnReconnect registers a callback invoked each time the watcher
// reopens its stream after the initial connection, letting a caller
// feed a metrics counter without this package importing one.
func WithOnReconnect(fn func()) CRDOption {
	return func(c *CRDBootstrapWatcher) { c.onReconnect = fn }
}

// NewCRDBootstrapWatcher wires together the watcher, convertor,
// registry, and analyzer the CRD bootstrap loop needs. log defaults
// to slog.Default() when nil.
func NewCRDBootstrapWatcher(watcher *Watcher, conv *convertor.Convertor, reg *registry.Registry, analyzer *discovery.Analyzer, log *slog.Logger, opts ...CRDOption) *CRDBootstrapWatcher {
	if log == nil {
		log = slog.Default()
	}
	c := &CRDBootstrapWatcher{watcher: watcher, conv: conv, reg: reg, analyzer: analyzer, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run starts the CRD bootstrap loop and blocks until ctx is
// cancelled. The one other way it returns is when the CRD watch URL
// cannot be built (the CRD kind is not in the Registry), which it
// logs as an error. Per §4.6's onClose
// contract, a stream that was open and later closed (peer reset,
// network blip, cancellation, or the one-time parse error a malformed
// CRD update could trigger) is reopened immediately; backoff applies
// only when the reconnect attempt itself fails to open, and resets
// once a connection succeeds. This is flattened into a loop rather
// than recursive calls so that a flaky connection never grows the
// call stack.
func (c *CRDBootstrapWatcher) Run(ctx context.Context) {
	delay := reconnectBaseDelay
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		url, err := c.conv.WatchAllURL(crdFullKind, convertor.AllNamespaces)
		if err != nil {
			c.log.Error("cannot build CRD watch URL, aborting bootstrap watcher", "error", err)
			return
		}

		closed := make(chan struct{})
		_, err = c.watcher.StartOpened(ctx, url, Callbacks{
			OnAdded:   c.handleAdded(ctx),
			OnDeleted: c.handleDeleted,
			OnClose: func(err error) {
				if err != nil {
					c.log.Warn("CRD bootstrap watch closed, reconnecting immediately", "error", err)
				}
				close(closed)
			},
		})
		if err != nil {
			c.log.Warn("CRD bootstrap watch failed to open, backing off", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(delay)):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		// Connected: an immediate reconnect is allowed to try again at
		// full speed the next time the stream closes.
		delay = reconnectBaseDelay
		if !first && c.onReconnect != nil {
			c.onReconnect()
		}
		first = false

		select {
		case <-ctx.Done():
			return
		case <-closed:
		}
	}
}

// jitter returns a duration uniformly distributed in [d/2, d], so that
// many clients reconnecting after the same outage do not all retry in
// lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func (c *CRDBootstrapWatcher) handleAdded(ctx context.Context) func(map[string]any) {
	return func(obj map[string]any) {
		group, version, ok := crdGroupAndFirstVersion(obj)
		if !ok {
			c.log.Warn("CRD ADDED event missing spec.group or spec.versions, skipping")
			return
		}
		if err := c.analyzer.TargetedDiscovery(ctx, group, version); err != nil {
			c.log.Warn("targeted discovery failed for new CRD, registration skipped", "group", group, "version", version, "error", err)
		}
	}
}

func (c *CRDBootstrapWatcher) handleDeleted(obj map[string]any) {
	group, shortKind, ok := crdGroupAndKind(obj)
	if !ok {
		c.log.Warn("CRD DELETED event missing spec.group or spec.names.kind, skipping")
		return
	}
	fullKind := group + "." + shortKind
	c.reg.RemoveFullKind(shortKind, fullKind)
}

// crdGroupAndFirstVersion extracts spec.group and the name of the
// first element of spec.versions, matching §4.6's "pick the first
// element of spec.versions by array order".
func crdGroupAndFirstVersion(obj map[string]any) (group, version string, ok bool) {
	spec, _ := obj["spec"].(map[string]any)
	if spec == nil {
		return "", "", false
	}
	group, _ = spec["group"].(string)
	versions, _ := spec["versions"].([]any)
	if group == "" || len(versions) == 0 {
		return "", "", false
	}
	first, _ := versions[0].(map[string]any)
	if first == nil {
		return "", "", false
	}
	version, _ = first["name"].(string)
	if version == "" {
		return "", "", false
	}
	return group, version, true
}

// crdGroupAndKind extracts spec.group and spec.names.kind.
func crdGroupAndKind(obj map[string]any) (group, kind string, ok bool) {
	spec, _ := obj["spec"].(map[string]any)
	if spec == nil {
		return "", "", false
	}
	group, _ = spec["group"].(string)
	names, _ := spec["names"].(map[string]any)
	if names == nil {
		return "", "", false
	}
	kind, _ = names["kind"].(string)
	if group == "" || kind == "" {
		return "", "", false
	}
	return group, kind, true
}
