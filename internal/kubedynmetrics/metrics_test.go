package kubedynmetrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_RegistersScrapeableInstruments(t *testing.T) {
	m, handler, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.DiscoveryRefreshes.Add(context.Background(), 1)
	m.WatchReconnects.Add(context.Background(), 2)
	m.WatchEventsTotal.Add(context.Background(), 5)
	if err := m.ObserveRegistrySize(func() int64 { return 7 }); err != nil {
		t.Fatalf("ObserveRegistrySize: %v", err)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"kubedyn_discovery_refreshes_total",
		"kubedyn_watch_reconnects_total",
		"kubedyn_watch_events_total",
		"kubedyn_registry_kinds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q:\n%s", want, body)
		}
	}
}

func TestObserveRegistrySize_ReportsLiveCount(t *testing.T) {
	m, handler, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	count := int64(3)
	if err := m.ObserveRegistrySize(func() int64 { return count }); err != nil {
		t.Fatalf("ObserveRegistrySize: %v", err)
	}

	scrape := func() string {
		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	if !strings.Contains(scrape(), "kubedyn_registry_kinds 3") {
		t.Fatalf("expected gauge to report 3 before update:\n%s", scrape())
	}

	count = 9
	if !strings.Contains(scrape(), "kubedyn_registry_kinds 9") {
		t.Fatalf("expected gauge to report live count 9 after update:\n%s", scrape())
	}
}
