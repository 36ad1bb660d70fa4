// Package metrics exports loader lifecycle events as Prometheus metrics.
package metrics

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GoCodeAlone/modhost"
)

const namespace = "modhost"

// ObserverID is the ID the collector registers under.
const ObserverID = "modhost.metrics"

// Collector is a loader Observer that records module lifecycle metrics.
type Collector struct {
	// Module lifecycle metrics
	EventsTotal   *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	ModuleUp      *prometheus.GaugeVec

	// Loader metrics
	LoadedModules prometheus.Gauge
	Discovered    prometheus.Counter
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_events_total",
				Help:      "Total number of module lifecycle events by type",
			},
			[]string{"type"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_failures_total",
				Help:      "Total number of modules skipped or failed, by phase",
			},
			[]string{"module", "phase"},
		),
		ModuleUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "module_up",
				Help:      "Whether a module is running (1) or not (0)",
			},
			[]string{"module", "version"},
		),
		LoadedModules: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "loaded_modules",
				Help:      "Number of modules that completed startup",
			},
		),
		Discovered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "modules_discovered_total",
				Help:      "Total number of modules built from packages",
			},
		),
	}
}

// ObserverID implements modhost.Observer.
func (c *Collector) ObserverID() string {
	return ObserverID
}

// OnEvent implements modhost.Observer.
func (c *Collector) OnEvent(_ context.Context, event cloudevents.Event) error {
	c.EventsTotal.WithLabelValues(event.Type()).Inc()

	data, err := modhost.ModuleEvent(event)
	if err != nil {
		return err
	}

	switch event.Type() {
	case modhost.EventTypeModuleDiscovered:
		c.Discovered.Inc()
	case modhost.EventTypeModuleStarted:
		c.ModuleUp.WithLabelValues(data.ModuleID, data.Version).Set(1)
	case modhost.EventTypeModuleStopped:
		c.ModuleUp.WithLabelValues(data.ModuleID, data.Version).Set(0)
	case modhost.EventTypeModuleSkipped, modhost.EventTypeModuleFailed,
		modhost.EventTypeModuleStopFailed, modhost.EventTypeModuleDiscoveryFailed:
		module := data.ModuleID
		if module == "" {
			module = "unknown"
		}
		c.FailuresTotal.WithLabelValues(module, string(data.Phase)).Inc()
		if event.Type() == modhost.EventTypeModuleStopFailed {
			c.ModuleUp.WithLabelValues(data.ModuleID, data.Version).Set(0)
		}
	case modhost.EventTypeLoaderInitialized, modhost.EventTypeLoaderShutdown:
		c.LoadedModules.Set(float64(data.Loaded))
	}
	return nil
}
