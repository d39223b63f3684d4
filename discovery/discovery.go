// Package discovery implements the Analyzer (§4.3): the component
// that crawls a cluster's discovery tree ("/api" and "/apis/<g>/<v>")
// and writes what it finds into a Registry. It never mutates anything
// outside the Registry it was given, and it is safe to call from
// multiple goroutines concurrently — concurrent bootstrap/refresh
// calls are deduplicated via singleflight so a storm of callers
// triggers exactly one crawl.
//
// This package is named "discovery" in this module (rather than, say,
// "analyzer") for discoverability, but it intentionally does not wrap
// k8s.io/client-go/discovery: the whole point of this client is to
// build its kind vocabulary from raw JSON, the way spec §4.3
// describes, not to delegate to a pre-built typed client.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/singleflight"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sversion "k8s.io/apimachinery/pkg/version"

	"github.com/kubedyn/kubedyn/convertor"
	"github.com/kubedyn/kubedyn/executor"
	"github.com/kubedyn/kubedyn/kerrors"
	"github.com/kubedyn/kubedyn/registry"
)

// minSupportedServerVersion is the oldest Kubernetes server version
// this client has been validated against. Older servers are not
// rejected — only logged as a warning — since the wire formats the
// Analyzer depends on (metav1.APIResourceList, metav1.APIGroupList)
// have been stable since well before this floor.
var minSupportedServerVersion = semver.MustParse("v1.16.0")

// Analyzer crawls a single cluster's discovery endpoints and
// populates a Registry.
type Analyzer struct {
	master string
	exec   executor.Executor
	reg    *registry.Registry
	log    *slog.Logger

	onRefresh func(time.Duration)

	sf singleflight.Group
}

// New returns an Analyzer targeting master (the API server base URL,
// no trailing slash) through exec, writing discovered kinds into reg.
func New(master string, exec executor.Executor, reg *registry.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{
		master: strings.TrimSuffix(master, "/"),
		exec:   exec,
		reg:    reg,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Option configures an Analyzer at construction time.
type Option func(*Analyzer)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) { a.log = log }
}

// WithOnRefresh registers a callback invoked after every completed
// bootstrap/refresh crawl (successful or not) with its wall-clock
// duration, letting a caller feed a metrics counter/histogram without
// this package importing one.
func WithOnRefresh(fn func(time.Duration)) Option {
	return func(a *Analyzer) { a.onRefresh = fn }
}

// Bootstrap performs the full construction-time crawl described in
// §4.3: it registers every core (/api/v1) resource, then every
// resource served at each API group's preferred version. Concurrent
// Bootstrap/Refresh calls collapse into a single crawl.
func (a *Analyzer) Bootstrap(ctx context.Context) error {
	_, err, _ := a.sf.Do("bootstrap", func() (any, error) {
		start := time.Now()
		err := a.bootstrap(ctx)
		if a.onRefresh != nil {
			a.onRefresh(time.Since(start))
		}
		return nil, err
	})
	return err
}

// Refresh forces a full re-crawl, beyond the construction-time-only
// crawl literally described in §4.3 — useful after a long network
// partition during which the cluster's API surface may have changed
// in ways the CRD bootstrap watcher alone would not observe (e.g. an
// operator upgrade that adds a built-in aggregated API group).
func (a *Analyzer) Refresh(ctx context.Context) error {
	return a.Bootstrap(ctx)
}

func (a *Analyzer) bootstrap(ctx context.Context) error {
	if err := a.discoverCore(ctx); err != nil {
		return err
	}
	return a.discoverGroups(ctx)
}

func (a *Analyzer) discoverCore(ctx context.Context) error {
	body, err := a.exec.DoGet(ctx, a.master+"/api/v1")
	if err != nil {
		return err
	}
	var list metav1.APIResourceList
	if err := json.Unmarshal(body, &list); err != nil {
		return kerrors.Parse(err)
	}
	a.registerResources("", "v1", list.APIResources)
	return nil
}

func (a *Analyzer) discoverGroups(ctx context.Context) error {
	body, err := a.exec.DoGet(ctx, a.master+"/apis")
	if err != nil {
		return err
	}
	var groups metav1.APIGroupList
	if err := json.Unmarshal(body, &groups); err != nil {
		return kerrors.Parse(err)
	}

	for _, g := range groups.Groups {
		version := g.PreferredVersion.Version
		if version == "" && len(g.Versions) > 0 {
			version = g.Versions[0].Version
		}
		if version == "" {
			continue
		}
		if err := a.TargetedDiscovery(ctx, g.Name, version); err != nil {
			// A single misbehaving aggregated API group (common with
			// extension API servers that are mid-rollout) must not
			// abort discovery of the rest of the cluster.
			a.log.Warn("skipping group during bootstrap discovery", "group", g.Name, "version", version, "error", err)
		}
	}
	return nil
}

// TargetedDiscovery crawls exactly one group/version pair and
// registers every resource it serves. It is exported so the CRD
// bootstrap watcher can call it directly against a CRD's freshly
// created group/version (§4.6 ADDED behavior) without re-running the
// entire bootstrap crawl. Concurrent calls for the same group/version
// are deduplicated.
func (a *Analyzer) TargetedDiscovery(ctx context.Context, group, version string) error {
	key := group + "/" + version
	_, err, _ := a.sf.Do(key, func() (any, error) {
		return nil, a.targetedDiscovery(ctx, group, version)
	})
	return err
}

func (a *Analyzer) targetedDiscovery(ctx context.Context, group, version string) error {
	url := a.master + "/apis/" + group + "/" + version
	if group == "" {
		url = a.master + "/api/" + version
	}

	body, err := a.exec.DoGet(ctx, url)
	if err != nil {
		return err
	}
	var list metav1.APIResourceList
	if err := json.Unmarshal(body, &list); err != nil {
		return kerrors.Parse(err)
	}
	a.registerResources(group, version, list.APIResources)
	return nil
}

// registerResources writes a complete KindDescriptor for every
// top-level resource in resources (sub-resources such as
// "pods/status", identified by a "/" in the name, are skipped per
// §4.3 step 1).
func (a *Analyzer) registerResources(group, version string, resources []metav1.APIResource) {
	apiVersion := version
	if group != "" {
		apiVersion = group + "/" + version
	}
	prefix := convertor.APIPrefixFromAPIVersion(a.master, apiVersion)

	for _, res := range resources {
		if strings.Contains(res.Name, "/") {
			continue
		}
		fullKind := res.Kind
		if group != "" {
			fullKind = group + "." + res.Kind
		}

		verbs := make(map[string]struct{}, len(res.Verbs))
		for _, v := range res.Verbs {
			verbs[v] = struct{}{}
		}

		a.reg.PutKind(fullKind, registry.KindDescriptor{
			Plural:     res.Name,
			Group:      group,
			Version:    version,
			Namespaced: res.Namespaced,
			APIPrefix:  prefix,
			Verbs:      verbs,
		})
	}
}

// ServerVersion fetches the cluster's reported git version and parses
// it with semver, logging a warning (never an error — this check is
// advisory) when the cluster predates minSupportedServerVersion.
func (a *Analyzer) ServerVersion(ctx context.Context) (*semver.Version, error) {
	body, err := a.exec.DoGet(ctx, a.master+"/version")
	if err != nil {
		return nil, err
	}
	var info k8sversion.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, kerrors.Parse(err)
	}

	v, err := semver.NewVersion(info.GitVersion)
	if err != nil {
		return nil, kerrors.Parse(fmt.Errorf("parse server version %q: %w", info.GitVersion, err))
	}

	if v.LessThan(minSupportedServerVersion) {
		a.log.Warn("cluster reports an older Kubernetes version than this client has been validated against",
			"serverVersion", v.String(), "minSupported", minSupportedServerVersion.String())
	}

	return v, nil
}
