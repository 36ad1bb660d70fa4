package modhost

import (
	"context"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// journal records lifecycle calls across modules in call order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	j.calls = append(j.calls, call)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type testModule struct {
	*BaseModule

	journal    *journal
	startErr   error
	stopErr    error
	startPanic any
	blockStart bool
	blockStop  bool
	onStart    func(ctx context.Context, sp ServiceProvider) error
	validation *ValidationResult
}

func newTestModule(id string, priority Priority, deps ...Dependency) *testModule {
	return newVersionedModule(id, "1.0.0", priority, deps...)
}

func newVersionedModule(id, version string, priority Priority, deps ...Dependency) *testModule {
	m := &testModule{}
	m.BaseModule = NewBaseModule(ModuleInfo{
		ID:           id,
		Name:         id,
		Version:      version,
		Priority:     priority,
		Dependencies: deps,
	}, m)
	return m
}

func (m *testModule) withJournal(j *journal) *testModule {
	m.journal = j
	return m
}

func (m *testModule) ValidateConfiguration() ValidationResult {
	if m.validation != nil {
		return *m.validation
	}
	return m.BaseModule.ValidateConfiguration()
}

func (m *testModule) OnModuleStartup(ctx context.Context, sp ServiceProvider) error {
	if m.journal != nil {
		m.journal.add("start:" + m.ID())
	}
	if m.startPanic != nil {
		panic(m.startPanic)
	}
	if m.blockStart {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.onStart != nil {
		if err := m.onStart(ctx, sp); err != nil {
			return err
		}
	}
	return m.startErr
}

func (m *testModule) OnModuleShutdown(ctx context.Context) error {
	if m.journal != nil {
		m.journal.add("stop:" + m.ID())
	}
	if m.blockStop {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.stopErr
}

func modules(ms ...*testModule) []Module {
	out := make([]Module, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

// eventSink collects loader events.
type eventSink struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (s *eventSink) ObserverID() string { return "test.sink" }

func (s *eventSink) OnEvent(_ context.Context, event cloudevents.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) ofType(eventType string) []ModuleEventData {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ModuleEventData
	for _, e := range s.events {
		if e.Type() != eventType {
			continue
		}
		data, err := ModuleEvent(e)
		if err == nil {
			out = append(out, data)
		}
	}
	return out
}
