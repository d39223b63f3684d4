// Package convertor implements the pure (Registry, inputs) -> URL
// function family described in spec §4.2. It performs no I/O; it
// fails only on a Registry miss (kerrors.CodeUnknownKind), a shortKind
// shared by several fullKinds (kerrors.CodeAmbiguousKind), or a
// malformed caller argument (kerrors.CodeInvalidArgument).
package convertor

import (
	"strconv"
	"strings"

	"github.com/kubedyn/kubedyn/kerrors"
	"github.com/kubedyn/kubedyn/registry"
)

// watchQuerySuffix sets timeoutSeconds to ~10 years, per spec §4.2/§5:
// watch connections effectively disable the server-side timeout.
const watchQuerySuffix = "?watch=true&timeoutSeconds=315360000"

// AllNamespaces is the sentinel namespace value meaning "every
// namespace" for list/watch operations. It is the empty string: every
// URL builder that takes an ns argument emits no namespace segment for
// "", single-resource operations included, so no default namespace is
// implied there. Callers that want a namespaced list across all
// namespaces pass AllNamespaces; callers that want the default
// namespace pass "default" explicitly.
const AllNamespaces = ""

// ListOptions configures the query string appended by ListURL, in the
// fixed parameter order specified by §4.2: kind, limit, continue,
// fieldSelector, labelSelector.
type ListOptions struct {
	// IncludeKind appends "kind=<kind>" to the query string. Off by
	// default: upstream Kubernetes does not require it (§9 Open
	// Question #1).
	IncludeKind   bool
	Limit         int64
	Continue      string
	FieldSelector string
	LabelSelector string
}

// Convertor builds URLs by consulting a Registry. It holds no mutable
// state of its own.
type Convertor struct {
	reg *registry.Registry
}

// New returns a Convertor backed by reg.
func New(reg *registry.Registry) *Convertor {
	return &Convertor{reg: reg}
}

// resolveFullKind normalizes a caller-supplied kind: a string
// containing no "." is a shortKind and is resolved through the
// Registry; anything else is treated as a fullKind directly (§4.2
// "Kind input normalization").
func (c *Convertor) resolveFullKind(kind string) (string, error) {
	if kind == "" {
		return "", kerrors.InvalidArgument("kind must not be empty")
	}
	if strings.Contains(kind, ".") {
		return kind, nil
	}
	return c.reg.FullKindOf(kind)
}

// namespaceSegment implements the namespace segment policy of §4.2:
// a namespaced descriptor with a non-empty ns yields
// "/namespaces/<ns>"; anything else yields no segment at all (either
// the resource is cluster-scoped, or the caller wants "all
// namespaces").
func namespaceSegment(d registry.KindDescriptor, ns string) string {
	if d.Namespaced && ns != "" {
		return "/namespaces/" + ns
	}
	return ""
}

func (c *Convertor) lookup(kind string) (string, registry.KindDescriptor, error) {
	fullKind, err := c.resolveFullKind(kind)
	if err != nil {
		return "", registry.KindDescriptor{}, err
	}
	d, err := c.reg.Descriptor(fullKind)
	if err != nil {
		return "", registry.KindDescriptor{}, err
	}
	return fullKind, d, nil
}

// CreateURL returns the collection URL a create POST targets, given
// kind and namespace.
func (c *Convertor) CreateURL(kind, ns string) (string, error) {
	_, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + namespaceSegment(d, ns) + "/" + d.Plural, nil
}

// CreateURLFromDocument derives the create URL from a resource
// document's apiVersion/kind/metadata: apiVersion containing "/"
// yields the fullKind "<group>.<kind>", otherwise the bare kind. The
// prefix, plural and namespaced flag all come from the Registry
// descriptor of that fullKind; the version part of apiVersion is not
// used, so the URL always carries the version registered for the
// fullKind. This keeps CreateURL and CreateURLFromDocument agreeing on
// the same final URL shape (the "identical base paths" testable
// property in §8).
func (c *Convertor) CreateURLFromDocument(doc map[string]any) (string, error) {
	fullKind, err := FullKindFromDocument(doc)
	if err != nil {
		return "", err
	}
	d, err := c.reg.Descriptor(fullKind)
	if err != nil {
		return "", err
	}
	ns := metadataNamespace(doc)
	return d.APIPrefix + namespaceSegment(d, ns) + "/" + d.Plural, nil
}

func itemOrEmptyURL(kind, ns, name string) error {
	if name == "" {
		return kerrors.InvalidArgument("resource name must not be empty")
	}
	_ = kind
	_ = ns
	return nil
}

// GetURL returns the single-resource URL for a GET.
func (c *Convertor) GetURL(kind, ns, name string) (string, error) {
	if err := itemOrEmptyURL(kind, ns, name); err != nil {
		return "", err
	}
	_, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + namespaceSegment(d, ns) + "/" + d.Plural + "/" + name, nil
}

// UpdateURL returns the single-resource URL for a PUT.
func (c *Convertor) UpdateURL(kind, ns, name string) (string, error) {
	return c.GetURL(kind, ns, name)
}

// DeleteURL returns the single-resource URL for a DELETE. Per §8
// scenario 8, a missing kind or empty name yields an error rather
// than a malformed URL.
func (c *Convertor) DeleteURL(kind, ns, name string) (string, error) {
	return c.GetURL(kind, ns, name)
}

// UpdateStatusURL returns the "/status" subresource URL for a PUT.
func (c *Convertor) UpdateStatusURL(kind, ns, name string) (string, error) {
	if err := itemOrEmptyURL(kind, ns, name); err != nil {
		return "", err
	}
	_, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + namespaceSegment(d, ns) + "/" + d.Plural + "/" + name + "/status", nil
}

// BindingURL returns the URL for POSTing a Binding sub-resource to a
// pod, always under the core "pods" plural regardless of what other
// kinds are registered (§4.2, §4.7).
func (c *Convertor) BindingURL(ns, podName string) (string, error) {
	if podName == "" {
		return "", kerrors.InvalidArgument("pod name must not be empty")
	}
	_, d, err := c.lookup("Pod")
	if err != nil {
		return "", err
	}
	return d.APIPrefix + namespaceSegment(d, ns) + "/pods/" + podName + "/binding", nil
}

// ListURL returns the collection URL for a LIST, with the query
// string built from opts.
func (c *Convertor) ListURL(kind, ns string, opts ListOptions) (string, error) {
	fullKind, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	base := d.APIPrefix + namespaceSegment(d, ns) + "/" + d.Plural
	return base + listQueryString(fullKind, opts), nil
}

func listQueryString(fullKind string, opts ListOptions) string {
	var params []string
	if opts.IncludeKind {
		params = append(params, "kind="+fullKind)
	}
	if opts.Limit > 0 {
		params = append(params, "limit="+strconv.FormatInt(opts.Limit, 10))
	}
	if opts.Continue != "" {
		params = append(params, "continue="+opts.Continue)
	}
	if opts.FieldSelector != "" {
		params = append(params, "fieldSelector="+opts.FieldSelector)
	}
	if opts.LabelSelector != "" {
		params = append(params, "labelSelector="+opts.LabelSelector)
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + strings.Join(params, "&")
}

// WatchOneURL returns the long-poll URL for watching a single named
// resource.
func (c *Convertor) WatchOneURL(kind, ns, name string) (string, error) {
	if err := itemOrEmptyURL(kind, ns, name); err != nil {
		return "", err
	}
	_, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + "/watch" + namespaceSegment(d, ns) + "/" + d.Plural + "/" + name + watchQuerySuffix, nil
}

// WatchAllURL returns the long-poll URL for watching every resource
// of a kind in a namespace (or cluster-wide / all-namespaces).
func (c *Convertor) WatchAllURL(kind, ns string) (string, error) {
	_, d, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return d.APIPrefix + "/watch" + namespaceSegment(d, ns) + "/" + d.Plural + watchQuerySuffix, nil
}

// ---------------------------------------------------------------------------
// Document helpers
// ---------------------------------------------------------------------------

// FullKindFromDocument parses a resource document's apiVersion and
// kind fields into a fullKind, applying the same group/version split
// used by the discovery analyzer (§4.2, §4.3): apiVersion containing
// "/" splits into group (before) and version (after); the bare
// apiVersion otherwise names a core-group version.
func FullKindFromDocument(doc map[string]any) (string, error) {
	apiVersion, _ := doc["apiVersion"].(string)
	kind, _ := doc["kind"].(string)
	if apiVersion == "" || kind == "" {
		return "", kerrors.InvalidArgument("document is missing apiVersion or kind")
	}

	if group, _, ok := strings.Cut(apiVersion, "/"); ok {
		return group + "." + kind, nil
	}
	return kind, nil
}

// APIPrefixFromAPIVersion returns the API prefix implied by an
// apiVersion string alone, without consulting a Registry: "v1" ->
// "/api/v1"; "apps/v1" -> "/apis/apps/v1". Used by the discovery
// analyzer while building descriptors, so that the prefix convention
// lives in exactly one place.
func APIPrefixFromAPIVersion(master, apiVersion string) string {
	if group, version, ok := strings.Cut(apiVersion, "/"); ok {
		return master + "/apis/" + group + "/" + version
	}
	return master + "/api/" + apiVersion
}

// metadataNamespace extracts metadata.namespace from a resource
// document, returning "default" when absent.
func metadataNamespace(doc map[string]any) string {
	metadata, _ := doc["metadata"].(map[string]any)
	if metadata == nil {
		return "default"
	}
	ns, _ := metadata["namespace"].(string)
	if ns == "" {
		return "default"
	}
	return ns
}

// StripStatus returns a shallow copy of doc with any top-level
// "status" key removed, matching the facade's create/update
// convention (§4.7, §6): the status subtree is server-managed and
// must not be sent on writes to non-status endpoints.
func StripStatus(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "status" {
			continue
		}
		out[k] = v
	}
	return out
}
