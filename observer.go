package modhost

import (
	"context"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of loader lifecycle events. Events follow the
// CloudEvents specification.
type Observer interface {
	// OnEvent is called synchronously from the loader loop, so observers
	// should return quickly. A returned error is logged and otherwise ignored.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration tracking.
	ObserverID() string
}

// Event types emitted by the loader, in reverse domain notation.
const (
	EventTypeModuleDiscovered      = "com.modhost.module.discovered"
	EventTypeModuleDiscoveryFailed = "com.modhost.module.discovery_failed"
	EventTypeModuleSkipped         = "com.modhost.module.skipped"
	EventTypeModuleDisabled        = "com.modhost.module.disabled"
	EventTypeModuleStarted         = "com.modhost.module.started"
	EventTypeModuleFailed          = "com.modhost.module.failed"
	EventTypeModuleStopped         = "com.modhost.module.stopped"
	EventTypeModuleStopFailed      = "com.modhost.module.stop_failed"

	EventTypeLoaderInitialized = "com.modhost.loader.initialized"
	EventTypeLoaderShutdown    = "com.modhost.loader.shutdown"
)

// ModuleEventData is the JSON payload of module events.
type ModuleEventData struct {
	ModuleID string         `json:"module_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Version  string         `json:"version,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Status   string         `json:"status,omitempty"`
	Phase    LifecyclePhase `json:"phase,omitempty"`
	Path     string         `json:"path,omitempty"`
	Error    string         `json:"error,omitempty"`
	Loaded   int            `json:"loaded,omitempty"`
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type registration struct {
	observer Observer
	info     ObserverInfo
}

// observers is embedded by Loader.
type observers struct {
	mu   sync.RWMutex
	regs []registration
}

// RegisterObserver adds an observer. With no event types it receives every
// event. Registering the same observer ID again replaces its filter.
func (o *observers) RegisterObserver(observer Observer, eventTypes ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	info := ObserverInfo{
		ID:           observer.ObserverID(),
		EventTypes:   append([]string(nil), eventTypes...),
		RegisteredAt: time.Now(),
	}
	for i, r := range o.regs {
		if r.info.ID == info.ID {
			o.regs[i] = registration{observer: observer, info: info}
			return nil
		}
	}
	o.regs = append(o.regs, registration{observer: observer, info: info})
	return nil
}

// UnregisterObserver removes an observer. Unknown observers are ignored.
func (o *observers) UnregisterObserver(observer Observer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regs = slices.DeleteFunc(o.regs, func(r registration) bool {
		return r.info.ID == observer.ObserverID()
	})
	return nil
}

// Observers returns information about the registered observers.
func (o *observers) Observers() []ObserverInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ObserverInfo, len(o.regs))
	for i, r := range o.regs {
		out[i] = r.info
	}
	return out
}

func (o *observers) notify(ctx context.Context, logger Logger, event cloudevents.Event) {
	o.mu.RLock()
	regs := slices.Clone(o.regs)
	o.mu.RUnlock()

	for _, r := range regs {
		if len(r.info.EventTypes) > 0 && !slices.Contains(r.info.EventTypes, event.Type()) {
			continue
		}
		if err := r.observer.OnEvent(ctx, event); err != nil {
			logger.Debug("Observer failed to handle event", "observer", r.info.ID, "eventType", event.Type(), "error", err)
		}
	}
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
