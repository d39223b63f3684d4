// Package registry implements the RuleBase: the in-memory index
// mapping short and fully-qualified resource kinds to the API
// metadata needed to build URLs against them. It is populated by the
// discovery analyzer at bootstrap and kept current by the CRD
// bootstrap watcher; the convertor only ever reads from it.
package registry

import (
	"sort"
	"sync"

	"github.com/kubedyn/kubedyn/kerrors"
)

// KindDescriptor is the complete set of metadata kubedyn needs to
// build URLs and validate verbs for one fullKind. One descriptor
// exists per fullKind (§3 of the design: "fullKind -> single
// descriptor").
type KindDescriptor struct {
	// Plural is the lowercase URL segment for the kind, e.g. "pods".
	Plural string
	// Group is the API group; empty for the core group.
	Group string
	// Version is the served version, e.g. "v1", "v1beta1".
	Version string
	// Namespaced reports whether the resource is scoped to a
	// namespace.
	Namespaced bool
	// APIPrefix is the absolute base URL up to and including
	// "/api/v1" or "/apis/<group>/<version>", without a trailing
	// slash.
	APIPrefix string
	// Verbs is the set of HTTP verbs the server advertises for this
	// resource (e.g. "get", "list", "watch", "create", "update",
	// "patch", "delete", "deletecollection").
	Verbs map[string]struct{}
}

// HasVerb reports whether the descriptor advertises the given verb.
// An empty verb set (as produced by discovery for resources that did
// not report any) is treated as "anything goes", matching the
// permissive default of Kubernetes clients that only use Verbs for
// capability hints rather than hard gating.
func (d KindDescriptor) HasVerb(verb string) bool {
	if len(d.Verbs) == 0 {
		return true
	}
	_, ok := d.Verbs[verb]
	return ok
}

// entry is the mutable per-fullKind record kept internally. It mirrors
// KindDescriptor but is unexported so Registry can enforce invariant
// I1 (all six attributes always present together) through its own API
// rather than letting callers poke at partial state.
type entry struct {
	plural     string
	group      string
	version    string
	namespaced bool
	apiPrefix  string
	verbs      map[string]struct{}
}

func (e entry) descriptor() KindDescriptor {
	verbs := make(map[string]struct{}, len(e.verbs))
	for v := range e.verbs {
		verbs[v] = struct{}{}
	}
	return KindDescriptor{
		Plural:     e.plural,
		Group:      e.group,
		Version:    e.version,
		Namespaced: e.namespaced,
		APIPrefix:  e.apiPrefix,
		Verbs:      verbs,
	}
}

// Registry is the RuleBase (§4.1): a concurrency-safe index from
// shortKind to the list of fullKinds that share it, and from fullKind
// to its KindDescriptor. All lookups and mutations are serialized
// through a single RWMutex, matching the "single readers-writer
// discipline" required by §5: a discovery refresh or CRD event can
// never be observed mid-write, and readers never block each other.
type Registry struct {
	mu         sync.RWMutex
	byFullKind map[string]*entry
	byShort    map[string][]string // shortKind -> sorted, deduped fullKinds
}

// New returns an empty Registry, ready for Put calls from the
// discovery analyzer.
func New() *Registry {
	return &Registry{
		byFullKind: make(map[string]*entry),
		byShort:    make(map[string][]string),
	}
}

// shortKindOf extracts the shortKind from a fullKind: the part after
// the last ".", or the whole string for core-group kinds which have
// no dot.
func shortKindOf(fullKind string) string {
	for i := len(fullKind) - 1; i >= 0; i-- {
		if fullKind[i] == '.' {
			return fullKind[i+1:]
		}
	}
	return fullKind
}

// PutKind idempotently installs or replaces the descriptor for
// fullKind and indexes it under its shortKind. Called by the
// discovery analyzer at bootstrap and by the CRD bootstrap watcher on
// ADDED events. Satisfies invariant I1: all six attributes are
// written together, atomically from the point of view of readers.
func (r *Registry) PutKind(fullKind string, d KindDescriptor) {
	short := shortKindOf(fullKind)

	verbs := make(map[string]struct{}, len(d.Verbs))
	for v := range d.Verbs {
		verbs[v] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.byFullKind[fullKind]
	r.byFullKind[fullKind] = &entry{
		plural:     d.Plural,
		group:      d.Group,
		version:    d.Version,
		namespaced: d.Namespaced,
		apiPrefix:  d.APIPrefix,
		verbs:      verbs,
	}

	if !existed {
		r.byShort[short] = insertSorted(r.byShort[short], fullKind)
	}
}

// RemoveFullKind deletes fullKind from every descriptor map and from
// its shortKind's candidate list, removing the shortKind entry
// entirely once its list becomes empty. Satisfies invariant I4.
// Called by the CRD bootstrap watcher on DELETED events.
func (r *Registry) RemoveFullKind(shortKind, fullKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byFullKind, fullKind)

	remaining := removeString(r.byShort[shortKind], fullKind)
	if len(remaining) == 0 {
		delete(r.byShort, shortKind)
	} else {
		r.byShort[shortKind] = remaining
	}
}

// FullKindOf resolves a shortKind to the single fullKind it names. If
// shortKind maps to several fullKinds, it fails with
// kerrors.CodeAmbiguousKind carrying the candidate list; if it maps to
// none, it fails with kerrors.CodeUnknownKind.
func (r *Registry) FullKindOf(shortKind string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byShort[shortKind]
	switch len(candidates) {
	case 0:
		return "", kerrors.UnknownKind(shortKind)
	case 1:
		return candidates[0], nil
	default:
		cp := make([]string, len(candidates))
		copy(cp, candidates)
		return "", kerrors.AmbiguousKind(shortKind, cp)
	}
}

// Descriptor returns the KindDescriptor for the given fullKind, or
// kerrors.CodeUnknownKind if it is not registered.
func (r *Registry) Descriptor(fullKind string) (KindDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byFullKind[fullKind]
	if !ok {
		return KindDescriptor{}, kerrors.UnknownKind(fullKind)
	}
	return e.descriptor(), nil
}

// ShortKinds returns every registered shortKind, sorted.
func (r *Registry) ShortKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byShort))
	for k := range r.byShort {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FullKinds returns every registered fullKind, sorted.
func (r *Registry) FullKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byFullKind))
	for k := range r.byFullKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns an immutable point-in-time copy of the full kind
// table, keyed by fullKind. Tests seed a Registry by constructing one
// from scratch and calling PutKind; Snapshot exists for introspection
// callers (getKindDesc, §6) that want every descriptor at once without
// holding the lock across N individual Descriptor calls.
func (r *Registry) Snapshot() map[string]KindDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]KindDescriptor, len(r.byFullKind))
	for k, e := range r.byFullKind {
		out[k] = e.descriptor()
	}
	return out
}

// insertSorted inserts v into the sorted, deduplicated slice s.
func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// removeString returns s with the first occurrence of v removed,
// preserving order. s is assumed sorted; the result stays sorted.
func removeString(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	if i >= len(s) || s[i] != v {
		return s
	}
	return append(s[:i:i], s[i+1:]...)
}
