package modhost

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedIDs(l *Loader) []string {
	var ids []string
	for _, m := range l.Modules() {
		ids = append(ids, m.ID())
	}
	return ids
}

func TestInitializeModulesLoadsIndependentModules(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	batch := modules(
		newTestModule("a", PriorityNormal),
		newTestModule("b", PriorityHigh),
		newTestModule("c", PriorityLow),
	)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, batch))
	assert.Equal(t, 3, loader.Len())
	for _, m := range batch {
		assert.True(t, loader.IsModuleLoaded(m.ID()))
		assert.Equal(t, StatusRunning, m.Status())
	}
}

func TestInitializeModulesSkipsMissingRequiredDependency(t *testing.T) {
	log := newTestLogger(t)
	loader := NewLoader(log)
	a := newTestModule("a", PriorityNormal, Requires("b", "", ""))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(a)))
	assert.False(t, loader.IsModuleLoaded("a"))
	assert.Equal(t, StatusLoaded, a.Status(), "a skipped module never starts")
	assert.NotEmpty(t, log.find("error", "Required dependency not loaded"))
}

func TestInitializeModulesLoadsWithMissingOptionalDependency(t *testing.T) {
	log := newTestLogger(t)
	loader := NewLoader(log)
	a := newTestModule("a", PriorityNormal, Optional("b", "", ""))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(a)))
	assert.True(t, loader.IsModuleLoaded("a"))
	assert.NotEmpty(t, log.find("warn", "Optional dependency not loaded"))
}

func TestInitializeModulesSkipsVersionOutOfRange(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink, EventTypeModuleSkipped))

	b := newVersionedModule("b", "2.0.0", PriorityHigh)
	a := newTestModule("a", PriorityNormal, Requires("b", "1.0.0", "1.9.9"))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(a, b)))
	assert.Equal(t, []string{"b"}, loadedIDs(loader))

	skipped := sink.ofType(EventTypeModuleSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "a", skipped[0].ModuleID)
	assert.Equal(t, PhaseDependency, skipped[0].Phase)
	assert.Contains(t, skipped[0].Error, "2.0.0")
}

func TestInitializeModulesSkipsDependentOfUnparseableVersion(t *testing.T) {
	loader := NewLoader(newTestLogger(t))

	metrics := newVersionedModule("metrics", "latest", PriorityHigh)
	reports := newTestModule("reports", PriorityNormal, Requires("metrics", "", ""))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(reports, metrics)))
	assert.Equal(t, []string{"metrics"}, loadedIDs(loader))
}

func TestInitializeModulesStartsInPriorityThenNameOrder(t *testing.T) {
	j := &journal{}
	loader := NewLoader(newTestLogger(t))
	batch := modules(
		newTestModule("late", PriorityVeryLow).withJournal(j),
		newTestModule("beta", PriorityNormal).withJournal(j),
		newTestModule("core", PriorityCritical).withJournal(j),
		newTestModule("alpha", PriorityNormal).withJournal(j),
	)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, batch))
	assert.Equal(t, []string{"start:core", "start:alpha", "start:beta", "start:late"}, j.list())
	assert.Equal(t, []string{"core", "alpha", "beta", "late"}, loadedIDs(loader))
}

func TestShutdownModulesRunsInReverseOrder(t *testing.T) {
	j := &journal{}
	loader := NewLoader(newTestLogger(t))
	batch := modules(
		newTestModule("c", PriorityVeryLow).withJournal(j),
		newTestModule("a", PriorityCritical).withJournal(j),
		newTestModule("b", PriorityNormal).withJournal(j),
	)
	require.NoError(t, loader.InitializeModules(context.Background(), nil, batch))

	loader.ShutdownModules(context.Background())
	assert.Equal(t, []string{
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, j.list())
	for _, m := range batch {
		assert.Equal(t, StatusStopped, m.Status())
	}
}

func TestShutdownModulesClearsStateWhenAModuleFails(t *testing.T) {
	log := newTestLogger(t)
	loader := NewLoader(log)
	failing := newTestModule("a", PriorityNormal)
	failing.stopErr = errors.New("flush failed")
	other := newTestModule("b", PriorityNormal)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(failing, other)))
	loader.ShutdownModules(context.Background())

	assert.Zero(t, loader.Len())
	assert.Empty(t, loader.LoadedModules())
	assert.Equal(t, StatusFailed, failing.Status())
	assert.Equal(t, StatusStopped, other.Status())
	assert.NotEmpty(t, log.find("error", "flush failed"))
}

func TestDependentModuleObservesItsDependencyLoaded(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	logging := newTestModule("Logging", PriorityCritical)
	reporting := newTestModule("Reporting", PriorityNormal, Requires("Logging", "1.0.0", ""))

	var sawLogging bool
	reporting.onStart = func(context.Context, ServiceProvider) error {
		sawLogging = loader.IsModuleLoaded("Logging")
		return nil
	}

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(reporting, logging)))
	assert.True(t, sawLogging)
	assert.Equal(t, []string{"Logging", "Reporting"}, loadedIDs(loader))
}

func TestStartupFailureIsContained(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink))

	broken := newTestModule("broken", PriorityHigh)
	broken.startErr = errors.New("port in use")
	dependent := newTestModule("dependent", PriorityNormal, Requires("broken", "", ""))
	healthy := newTestModule("healthy", PriorityLow)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(broken, dependent, healthy)))
	assert.Equal(t, []string{"healthy"}, loadedIDs(loader))
	assert.Equal(t, StatusFailed, broken.Status())

	failed := sink.ofType(EventTypeModuleFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ModuleID)
	assert.Equal(t, "port in use", failed[0].Error)
	require.Len(t, sink.ofType(EventTypeModuleSkipped), 1)
}

func TestStartupPanicIsRecovered(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink, EventTypeModuleFailed))

	m := newTestModule("volatile", PriorityNormal)
	m.startPanic = "nil map write"
	next := newTestModule("next", PriorityLow)

	require.NotPanics(t, func() {
		require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(m, next)))
	})
	assert.Equal(t, []string{"next"}, loadedIDs(loader))
	assert.Equal(t, StatusFailed, m.Status())

	failed := sink.ofType(EventTypeModuleFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "nil map write")
}

func TestValidationFailureSkipsModule(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	m := newTestModule("misconfigured", PriorityNormal)
	invalid := ValidationFailure("connection string is empty")
	m.validation = &invalid

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(m)))
	assert.False(t, loader.IsModuleLoaded("misconfigured"))
	assert.Equal(t, StatusFailed, m.Status())
}

func TestStartupTimeoutAbandonsModule(t *testing.T) {
	loader := NewLoader(newTestLogger(t), WithStartupTimeout(50*time.Millisecond))
	slow := newTestModule("slow", PriorityNormal)
	slow.blockStart = true
	next := newTestModule("next", PriorityLow)

	start := time.Now()
	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(slow, next)))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, []string{"next"}, loadedIDs(loader))
	assert.Eventually(t, func() bool { return slow.Status() == StatusFailed }, time.Second, 10*time.Millisecond)
}

func TestShutdownTimeoutContinuesWithRemainingModules(t *testing.T) {
	j := &journal{}
	loader := NewLoader(newTestLogger(t), WithShutdownTimeout(50*time.Millisecond))
	first := newTestModule("first", PriorityCritical).withJournal(j)
	stuck := newTestModule("stuck", PriorityNormal).withJournal(j)
	stuck.blockStop = true

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(first, stuck)))
	loader.ShutdownModules(context.Background())

	assert.Equal(t, []string{"start:first", "start:stuck", "stop:stuck", "stop:first"}, j.list())
	assert.Equal(t, StatusStopped, first.Status())
	assert.Zero(t, loader.Len())
}

func TestDisabledModuleIsNotLoaded(t *testing.T) {
	j := &journal{}
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink, EventTypeModuleDisabled))

	m := newTestModule("paused", PriorityNormal).withJournal(j)
	m.Disable("maintenance window")

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(m)))
	assert.False(t, loader.IsModuleLoaded("paused"))
	assert.Equal(t, StatusDisabled, m.Status())
	assert.Empty(t, j.list(), "startup hook of a disabled module never runs")
	require.Len(t, sink.ofType(EventTypeModuleDisabled), 1)
}

func TestDuplicateModuleIDIsSkipped(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	first := newTestModule("dup", PriorityNormal)
	second := newTestModule("dup", PriorityLow)

	err := loader.InitializeModules(context.Background(), nil, modules(second, first))
	require.ErrorIs(t, err, ErrDuplicateModuleID)
	assert.Equal(t, 1, loader.Len())

	got, ok := loader.GetModule("dup")
	require.True(t, ok)
	assert.Same(t, first, got, "the earlier module in load order wins")
	assert.Equal(t, StatusLoaded, second.Status())
}

func TestInitializeModulesStopsOnCancelledContext(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := loader.InitializeModules(ctx, nil, modules(newTestModule("a", PriorityNormal)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, loader.Len())
}

func TestCycleMembersAreSkipped(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink, EventTypeModuleSkipped))

	a := newTestModule("a", PriorityNormal, Requires("b", "", ""))
	b := newTestModule("b", PriorityNormal, Requires("a", "", ""))
	c := newTestModule("c", PriorityLow, Requires("a", "", ""))
	d := newTestModule("d", PriorityLow)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(a, b, c, d)))
	assert.Equal(t, []string{"d"}, loadedIDs(loader))

	skipped := sink.ofType(EventTypeModuleSkipped)
	require.Len(t, skipped, 3)
	assert.Contains(t, skipped[0].Error, "a -> b -> a")
	assert.Contains(t, skipped[1].Error, "a -> b -> a")
	assert.Contains(t, skipped[2].Error, "requires a which is not loaded")
}

func TestEveryCycleMemberGetsCycleDiagnostic(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink, EventTypeModuleSkipped))

	x := newTestModule("x", PriorityNormal, Requires("y", "", ""), Requires("z", "", ""))
	y := newTestModule("y", PriorityNormal, Requires("x", "", ""))
	z := newTestModule("z", PriorityNormal, Requires("y", "", ""))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(x, y, z)))
	assert.Zero(t, loader.Len())

	skipped := sink.ofType(EventTypeModuleSkipped)
	require.Len(t, skipped, 3)
	for _, s := range skipped {
		assert.Contains(t, s.Error, "dependency cycle", s.ModuleID)
	}
	assert.Contains(t, skipped[2].Error, "z -> y -> x -> z")
}

func TestCycleDetectionDisabledStillSkipsCycle(t *testing.T) {
	log := newTestLogger(t)
	loader := NewLoader(log, WithCycleDetection(false))
	a := newTestModule("a", PriorityNormal, Requires("b", "", ""))
	b := newTestModule("b", PriorityNormal, Requires("a", "", ""))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(a, b)))
	assert.Zero(t, loader.Len())
	assert.Empty(t, log.find("error", "dependency cycle"))
}

type reportSink interface{ Flush() error }

func TestFindExporterReturnsFirstInLoadOrder(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sinkType := reflect.TypeOf((*reportSink)(nil)).Elem()

	exporter := &testModule{}
	exporter.BaseModule = NewBaseModule(ModuleInfo{
		ID: "exporter", Name: "exporter", Version: "1.0.0", Priority: PriorityHigh,
		ExportedTypes: []reflect.Type{sinkType},
	}, exporter)
	later := &testModule{}
	later.BaseModule = NewBaseModule(ModuleInfo{
		ID: "later", Name: "later", Version: "1.0.0", Priority: PriorityLow,
		ExportedTypes: []reflect.Type{sinkType},
	}, later)

	require.NoError(t, loader.InitializeModules(context.Background(), nil, []Module{later, exporter}))

	got, ok := loader.FindExporter(sinkType)
	require.True(t, ok)
	assert.Equal(t, "exporter", got.ID())

	_, ok = loader.FindExporter(reflect.TypeOf(0))
	assert.False(t, ok)
}

func TestLoadedModulesReturnsACopy(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(newTestModule("a", PriorityNormal))))

	snapshot := loader.LoadedModules()
	delete(snapshot, "a")
	assert.True(t, loader.IsModuleLoaded("a"))
}

func TestLoaderEmitsLifecycleEvents(t *testing.T) {
	loader := NewLoader(newTestLogger(t))
	sink := &eventSink{}
	require.NoError(t, loader.RegisterObserver(sink))

	require.NoError(t, loader.InitializeModules(context.Background(), nil, modules(newTestModule("a", PriorityNormal))))
	loader.ShutdownModules(context.Background())

	var types []string
	for _, e := range sink.events {
		types = append(types, e.Type())
		assert.Equal(t, EventSource, e.Source())
	}
	assert.Equal(t, []string{
		EventTypeModuleStarted,
		EventTypeLoaderInitialized,
		EventTypeModuleStopped,
		EventTypeLoaderShutdown,
	}, types)

	started := sink.ofType(EventTypeModuleStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "running", started[0].Status)
	assert.Equal(t, "a", sink.events[0].Extensions()["moduleid"])

	initialized := sink.ofType(EventTypeLoaderInitialized)
	require.Len(t, initialized, 1)
	assert.Equal(t, 1, initialized[0].Loaded)
}

func TestLoadOrderIsStableAndDropsNil(t *testing.T) {
	x2 := newTestModule("x2", PriorityNormal)
	x2.info.Name = "x"
	x1 := newTestModule("x1", PriorityNormal)
	x1.info.Name = "x"

	sorted := LoadOrder([]Module{x2, nil, x1, newTestModule("a", PriorityVeryLow)})
	require.Len(t, sorted, 3)
	assert.Equal(t, "x1", sorted[0].ID(), "ID breaks ties between equal names")
	assert.Equal(t, "x2", sorted[1].ID())
	assert.Equal(t, "a", sorted[2].ID())
}

func TestCallWithTimeoutReturnsParentError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := callWithTimeout(ctx, time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrModuleTimeout)
}

func TestGuardConvertsPanic(t *testing.T) {
	err := guard(func() error { panic("boom") })
	require.ErrorIs(t, err, ErrModulePanic)
	assert.Contains(t, err.Error(), "boom")
}
