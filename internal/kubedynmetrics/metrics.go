// Package kubedynmetrics wires the OTel meter provider to a
// Prometheus exporter and registers the gauges/counters the rest of
// kubedyn reports through, the same way the teacher wires its
// Hub.registerMetrics: an OTel SDK meter provider backed by
// go.opentelemetry.io/otel/exporters/prometheus, exposed over HTTP via
// prometheus/client_golang's promhttp.Handler.
package kubedynmetrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments kubedyn reports against. All
// instruments are safe for concurrent use, matching the OTel metric
// API's own concurrency guarantee.
type Metrics struct {
	meter metric.Meter

	RegistrySize         metric.Int64ObservableGauge
	DiscoveryRefreshes   metric.Int64Counter
	DiscoveryRefreshTime metric.Float64Histogram
	WatchReconnects      metric.Int64Counter
	WatchEventsTotal     metric.Int64Counter
}

// New builds an OTel meter provider backed by its own Prometheus
// registry (not the global DefaultRegisterer, so that more than one
// Metrics instance can coexist in the same process without a
// duplicate-collector registration panic), registers kubedyn's
// instruments under it, and returns both the instrument bundle and an
// http.Handler to serve at "/metrics".
func New() (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry), otelprometheus.WithoutScopeInfo())
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	meter := provider.Meter("github.com/kubedyn/kubedyn")

	m := &Metrics{meter: meter}

	m.RegistrySize, err = meter.Int64ObservableGauge(
		"kubedyn_registry_kinds",
		metric.WithDescription("number of fullKinds currently registered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DiscoveryRefreshes, err = meter.Int64Counter(
		"kubedyn_discovery_refreshes_total",
		metric.WithDescription("number of completed discovery bootstrap/refresh crawls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DiscoveryRefreshTime, err = meter.Float64Histogram(
		"kubedyn_discovery_refresh_seconds",
		metric.WithDescription("wall-clock duration of a discovery bootstrap/refresh crawl"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WatchReconnects, err = meter.Int64Counter(
		"kubedyn_watch_reconnects_total",
		metric.WithDescription("number of times the CRD bootstrap watcher has reopened its stream"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WatchEventsTotal, err = meter.Int64Counter(
		"kubedyn_watch_events_total",
		metric.WithDescription("number of ADDED/MODIFIED/DELETED events dispatched across all watchers"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// ObserveRegistrySize registers a callback that reports size whenever
// the OTel reader collects, used to back the RegistrySize gauge with a
// live count instead of a manually-set value.
func (m *Metrics) ObserveRegistrySize(size func() int64) error {
	_, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.RegistrySize, size())
		return nil
	}, m.RegistrySize)
	return err
}
