package registry

import (
	"errors"
	"testing"

	"github.com/kubedyn/kubedyn/kerrors"
)

func podDescriptor() KindDescriptor {
	return KindDescriptor{
		Plural:     "pods",
		Group:      "",
		Version:    "v1",
		Namespaced: true,
		APIPrefix:  "https://host:6443/api/v1",
		Verbs:      map[string]struct{}{"get": {}, "list": {}, "watch": {}},
	}
}

func TestPutKindAndDescriptor(t *testing.T) {
	r := New()
	r.PutKind("Pod", podDescriptor())

	d, err := r.Descriptor("Pod")
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if d.Plural != "pods" || d.Version != "v1" || !d.Namespaced {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if d.APIPrefix != "https://host:6443/api/v1" {
		t.Fatalf("unexpected apiPrefix: %q", d.APIPrefix)
	}
}

func TestFullKindOfUnambiguous(t *testing.T) {
	r := New()
	r.PutKind("Pod", podDescriptor())

	full, err := r.FullKindOf("Pod")
	if err != nil {
		t.Fatalf("FullKindOf: %v", err)
	}
	if full != "Pod" {
		t.Fatalf("expected fullKind Pod, got %q", full)
	}
}

func TestFullKindOfAmbiguous(t *testing.T) {
	r := New()
	r.PutKind("networking.k8s.io.Ingress", KindDescriptor{Plural: "ingresses", Group: "networking.k8s.io", Version: "v1", Namespaced: true, APIPrefix: "https://host/apis/networking.k8s.io/v1"})
	r.PutKind("extensions.Ingress", KindDescriptor{Plural: "ingresses", Group: "extensions", Version: "v1beta1", Namespaced: true, APIPrefix: "https://host/apis/extensions/v1beta1"})

	_, err := r.FullKindOf("Ingress")
	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeAmbiguousKind {
		t.Fatalf("expected AmbiguousKind, got %v", err)
	}
	if len(kerr.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %v", kerr.Candidates)
	}
}

func TestFullKindOfUnknown(t *testing.T) {
	r := New()
	_, err := r.FullKindOf("Widget")
	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeUnknownKind {
		t.Fatalf("expected UnknownKind, got %v", err)
	}
}

func TestRemoveFullKindClearsShortKindWhenEmpty(t *testing.T) {
	r := New()
	r.PutKind("example.com.Widget", KindDescriptor{Plural: "widgets", Group: "example.com", Version: "v1", Namespaced: true, APIPrefix: "https://host/apis/example.com/v1"})

	r.RemoveFullKind("Widget", "example.com.Widget")

	if _, err := r.Descriptor("example.com.Widget"); err == nil {
		t.Fatal("expected UnknownKind after removal")
	}
	if _, err := r.FullKindOf("Widget"); err == nil {
		t.Fatal("expected shortKind to be gone after last fullKind removed")
	}
}

func TestRemoveFullKindKeepsSiblingShortKindEntries(t *testing.T) {
	r := New()
	r.PutKind("networking.k8s.io.Ingress", KindDescriptor{Plural: "ingresses", Group: "networking.k8s.io", Version: "v1", Namespaced: true, APIPrefix: "https://host/apis/networking.k8s.io/v1"})
	r.PutKind("extensions.Ingress", KindDescriptor{Plural: "ingresses", Group: "extensions", Version: "v1beta1", Namespaced: true, APIPrefix: "https://host/apis/extensions/v1beta1"})

	r.RemoveFullKind("Ingress", "extensions.Ingress")

	full, err := r.FullKindOf("Ingress")
	if err != nil {
		t.Fatalf("expected remaining Ingress to resolve unambiguously, got %v", err)
	}
	if full != "networking.k8s.io.Ingress" {
		t.Fatalf("unexpected survivor: %q", full)
	}
}

func TestPutKindIsIdempotentAndDeduped(t *testing.T) {
	r := New()
	r.PutKind("Pod", podDescriptor())
	r.PutKind("Pod", podDescriptor())

	full := r.ShortKinds()
	if len(full) != 1 || full[0] != "Pod" {
		t.Fatalf("expected a single deduped shortKind entry, got %v", full)
	}
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	r := New()
	r.PutKind("Pod", podDescriptor())

	snap := r.Snapshot()
	d := snap["Pod"]
	d.Verbs["delete"] = struct{}{}

	fresh, err := r.Descriptor("Pod")
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if fresh.HasVerb("delete") {
		t.Fatal("mutating a snapshot descriptor must not affect the registry")
	}
}

func TestHasVerbEmptySetIsPermissive(t *testing.T) {
	d := KindDescriptor{Plural: "widgets"}
	if !d.HasVerb("anything") {
		t.Fatal("empty verb set should be treated as permissive")
	}
}
