// Package kubedyn is a dynamic, schema-discovering client for a
// Kubernetes-style REST/Watch API. It learns its vocabulary of
// resource kinds — including Custom Resource Definitions — at
// runtime by crawling the cluster's discovery endpoints, then
// translates untyped JSON resource documents into the correct HTTP
// URLs, methods, and streaming watch connections.
//
// Client is the package's facade: it composes a Registry, a
// Convertor, a discovery Analyzer, a Watch Engine, and a CRD
// Bootstrap Watcher behind the operations described in the package's
// design notes (createResource, getResource, watchResources, and so
// on). Callers never touch those subsystems directly.
package kubedyn

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kubedyn/kubedyn/convertor"
	"github.com/kubedyn/kubedyn/discovery"
	"github.com/kubedyn/kubedyn/executor"
	"github.com/kubedyn/kubedyn/internal/kubedynmetrics"
	"github.com/kubedyn/kubedyn/kerrors"
	"github.com/kubedyn/kubedyn/registry"
	"github.com/kubedyn/kubedyn/transport"
	"github.com/kubedyn/kubedyn/watchengine"
)

// marshalJSON wraps json.Marshal in kubedyn's own error vocabulary so
// every facade method fails with a *kerrors.Error, not a bare
// encoding/json one.
func marshalJSON(v map[string]any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, kerrors.Parse(err)
	}
	return body, nil
}

// Error and ErrorCode re-export kerrors' vocabulary so callers never
// need to import the leaf package directly.
type (
	Error     = kerrors.Error
	ErrorCode = kerrors.Code
)

// Error codes, re-exported for convenience.
const (
	ErrUnknownKind     = kerrors.CodeUnknownKind
	ErrAmbiguousKind   = kerrors.CodeAmbiguousKind
	ErrTransport       = kerrors.CodeTransport
	ErrAPIFailure      = kerrors.CodeAPIFailure
	ErrParse           = kerrors.CodeParse
	ErrCancelled       = kerrors.CodeCancelled
	ErrInvalidArgument = kerrors.CodeInvalidArgument
)

// AllNamespaces selects every namespace for list/watch operations.
const AllNamespaces = convertor.AllNamespaces

// ListOptions configures listResources; see convertor.ListOptions for
// field semantics.
type ListOptions = convertor.ListOptions

// WatchHandle lets a caller stop a running watch.
type WatchHandle = watchengine.Handle

// WatchCallbacks is the four-method callback set a caller supplies to
// watchResource/watchResources.
type WatchCallbacks = watchengine.Callbacks

// Client is the facade composing the Registry, Convertor, discovery
// Analyzer, Watch Engine, and CRD Bootstrap Watcher into the public
// operations described in §4.7/§6.
type Client struct {
	reg      *registry.Registry
	conv     *convertor.Convertor
	exec     executor.Executor
	analyzer *discovery.Analyzer
	watcher  *watchengine.Watcher
	log      *slog.Logger
	metrics  *kubedynmetrics.Metrics

	crdCancel context.CancelFunc
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger overrides the default logger used by the discovery
// analyzer and watch engine.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics reports discovery/watch activity against m: registry
// size, discovery refresh counts/durations, watch reconnects, and
// dispatched watch events (§4.9). Without this option the client
// reports nothing — no metrics registry is created, and no network
// listener is opened, by default.
func WithMetrics(m *kubedynmetrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a Client against creds and immediately runs the
// construction-time discovery bootstrap (§2 "At construction, C3
// walks discovery endpoints via C4 and fills C1"), then starts the
// CRD bootstrap watcher in the background so the kind vocabulary
// keeps expanding and contracting with the cluster for the lifetime
// of the returned Client.
func New(ctx context.Context, creds transport.Credentials, opts ...Option) (*Client, error) {
	return NewWithExecutor(ctx, creds.MasterURL(), transport.New(creds), opts...)
}

// NewWithExecutor builds a Client against an already-constructed
// Executor, bypassing credential parsing entirely. Exported so
// callers with an unusual transport (and tests) can inject their own
// Executor instead of going through New/transport.Credentials.
func NewWithExecutor(ctx context.Context, masterURL string, exec executor.Executor, opts ...Option) (*Client, error) {
	reg := registry.New()

	c := &Client{
		reg:  reg,
		conv: convertor.New(reg),
		exec: exec,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}

	discoveryOpts := []discovery.Option{discovery.WithLogger(c.log)}
	watcherOpts := []watchengine.Option{watchengine.WithLogger(c.log)}
	var crdOpts []watchengine.CRDOption

	if c.metrics != nil {
		discoveryOpts = append(discoveryOpts, discovery.WithOnRefresh(func(d time.Duration) {
			c.metrics.DiscoveryRefreshes.Add(context.Background(), 1)
			c.metrics.DiscoveryRefreshTime.Record(context.Background(), d.Seconds())
		}))
		watcherOpts = append(watcherOpts, watchengine.WithOnEvent(func() {
			c.metrics.WatchEventsTotal.Add(context.Background(), 1)
		}))
		crdOpts = append(crdOpts, watchengine.WithOnReconnect(func() {
			c.metrics.WatchReconnects.Add(context.Background(), 1)
		}))
		if err := c.metrics.ObserveRegistrySize(func() int64 { return int64(len(reg.FullKinds())) }); err != nil {
			return nil, kerrors.Transport(err)
		}
	}

	c.analyzer = discovery.New(masterURL, exec, reg, discoveryOpts...)
	c.watcher = watchengine.New(exec, watcherOpts...)

	if err := c.analyzer.Bootstrap(ctx); err != nil {
		return nil, err
	}

	crdCtx, cancel := context.WithCancel(context.Background())
	c.crdCancel = cancel
	crdWatcher := watchengine.NewCRDBootstrapWatcher(c.watcher, c.conv, c.reg, c.analyzer, c.log, crdOpts...)
	go crdWatcher.Run(crdCtx)

	return c, nil
}

// Close stops the CRD bootstrap watcher. It does not close any
// synchronous-request connection pool; the Executor owns that.
func (c *Client) Close() {
	if c.crdCancel != nil {
		c.crdCancel()
	}
}

// CreateResource POSTs doc (with any "status" subtree stripped) to
// its collection URL, derived from doc's own apiVersion/kind/metadata
// (§4.7).
func (c *Client) CreateResource(ctx context.Context, doc map[string]any) ([]byte, error) {
	url, err := c.conv.CreateURLFromDocument(doc)
	if err != nil {
		return nil, err
	}
	body, err := marshalJSON(convertor.StripStatus(doc))
	if err != nil {
		return nil, err
	}
	return c.exec.DoPost(ctx, url, body)
}

// UpdateResource PUTs doc (with any "status" subtree stripped) to its
// single-resource URL.
func (c *Client) UpdateResource(ctx context.Context, doc map[string]any) ([]byte, error) {
	fullKind, err := convertor.FullKindFromDocument(doc)
	if err != nil {
		return nil, err
	}
	name, ns, err := resourceIdentity(doc)
	if err != nil {
		return nil, err
	}
	url, err := c.conv.UpdateURL(fullKind, ns, name)
	if err != nil {
		return nil, err
	}
	body, err := marshalJSON(convertor.StripStatus(doc))
	if err != nil {
		return nil, err
	}
	return c.exec.DoPut(ctx, url, body)
}

// UpdateResourceStatus PUTs doc's full body (status included) to its
// "/status" subresource URL.
func (c *Client) UpdateResourceStatus(ctx context.Context, doc map[string]any) ([]byte, error) {
	fullKind, err := convertor.FullKindFromDocument(doc)
	if err != nil {
		return nil, err
	}
	name, ns, err := resourceIdentity(doc)
	if err != nil {
		return nil, err
	}
	url, err := c.conv.UpdateStatusURL(fullKind, ns, name)
	if err != nil {
		return nil, err
	}
	body, err := marshalJSON(doc)
	if err != nil {
		return nil, err
	}
	return c.exec.DoPut(ctx, url, body)
}

// DeleteResource DELETEs the named resource.
func (c *Client) DeleteResource(ctx context.Context, kind, ns, name string) ([]byte, error) {
	url, err := c.conv.DeleteURL(kind, ns, name)
	if err != nil {
		return nil, err
	}
	return c.exec.DoDelete(ctx, url)
}

// GetResource GETs the named resource.
func (c *Client) GetResource(ctx context.Context, kind, ns, name string) ([]byte, error) {
	url, err := c.conv.GetURL(kind, ns, name)
	if err != nil {
		return nil, err
	}
	return c.exec.DoGet(ctx, url)
}

// HasResource reports whether the named resource exists: getResource
// mapped to a boolean, any error (including UnknownKind) meaning
// false (§4.7).
func (c *Client) HasResource(ctx context.Context, kind, ns, name string) bool {
	_, err := c.GetResource(ctx, kind, ns, name)
	return err == nil
}

// ListResources GETs the collection URL for kind in ns, with opts
// controlling the query string.
func (c *Client) ListResources(ctx context.Context, kind, ns string, opts ListOptions) ([]byte, error) {
	url, err := c.conv.ListURL(kind, ns, opts)
	if err != nil {
		return nil, err
	}
	return c.exec.DoGet(ctx, url)
}

// BindingResource synthesizes a Binding document targeting host and
// POSTs it to pod's "/binding" subresource (§4.7).
func (c *Client) BindingResource(ctx context.Context, ns, pod, host string) ([]byte, error) {
	url, err := c.conv.BindingURL(ns, pod)
	if err != nil {
		return nil, err
	}
	binding := map[string]any{
		"apiVersion": "v1",
		"kind":       "Binding",
		"metadata": map[string]any{
			"name":      pod,
			"namespace": ns,
		},
		"target": map[string]any{
			"apiVersion": "v1",
			"kind":       "Node",
			"name":       host,
		},
	}
	body, err := marshalJSON(binding)
	if err != nil {
		return nil, err
	}
	return c.exec.DoPost(ctx, url, body)
}

// WatchResource watches a single named resource, delivering events to
// cb until the returned handle is stopped or the server closes the
// stream for good.
func (c *Client) WatchResource(ctx context.Context, kind, ns, name string, cb WatchCallbacks) (*WatchHandle, error) {
	url, err := c.conv.WatchOneURL(kind, ns, name)
	if err != nil {
		return nil, err
	}
	return c.watcher.Start(ctx, url, cb), nil
}

// WatchResources watches every resource of kind in ns (or
// cluster-wide / all-namespaces, per ns's usual meaning).
func (c *Client) WatchResources(ctx context.Context, kind, ns string, cb WatchCallbacks) (*WatchHandle, error) {
	url, err := c.conv.WatchAllURL(kind, ns)
	if err != nil {
		return nil, err
	}
	return c.watcher.Start(ctx, url, cb), nil
}

// GetKinds returns every registered shortKind, sorted.
func (c *Client) GetKinds() []string { return c.reg.ShortKinds() }

// GetFullKinds returns every registered fullKind, sorted.
func (c *Client) GetFullKinds() []string { return c.reg.FullKinds() }

// GetKindDesc returns a point-in-time snapshot of every registered
// fullKind's descriptor.
func (c *Client) GetKindDesc() map[string]registry.KindDescriptor { return c.reg.Snapshot() }

// Refresh forces the discovery analyzer to re-crawl the entire
// cluster, beyond the construction-time-only crawl literally
// described in the original design (§4.10 supplemented operation).
func (c *Client) Refresh(ctx context.Context) error { return c.analyzer.Refresh(ctx) }

// resourceIdentity extracts metadata.name and metadata.namespace from
// a resource document, failing if name is absent.
func resourceIdentity(doc map[string]any) (name, ns string, err error) {
	metadata, _ := doc["metadata"].(map[string]any)
	if metadata == nil {
		return "", "", kerrors.InvalidArgument("document is missing metadata")
	}
	name, _ = metadata["name"].(string)
	if name == "" {
		return "", "", kerrors.InvalidArgument("document is missing metadata.name")
	}
	ns, _ = metadata["namespace"].(string)
	return name, ns, nil
}
