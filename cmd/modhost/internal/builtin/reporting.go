package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modhost"
)

// ReportingSettings configures the reporting module.
type ReportingSettings struct {
	Schedule string `yaml:"schedule" default:"@every 1m"`
}

// Report is a snapshot produced by the reporting job.
type Report struct {
	LoadedModules int
	AuditEntries  int
	Requests      int64
}

// ReportingModule periodically logs a summary of the running host.
type ReportingModule struct {
	*modhost.BaseModule
	settings ReportingSettings

	mu       sync.Mutex
	cron     *cron.Cron
	loader   *modhost.Loader
	recorder *Recorder
	logging  *LoggingModule
	last     Report
	runs     int
}

// NewReporting is the factory of the reporting module.
func NewReporting() (modhost.Module, error) {
	m := &ReportingModule{}
	m.BaseModule = modhost.NewBaseModule(modhost.ModuleInfo{
		ID:          "reporting",
		Name:        "Reporting",
		Version:     "1.0.0",
		Description: "Scheduled host summary reports",
		Author:      "modhost",
		Priority:    modhost.PriorityNormal,
		Dependencies: []modhost.Dependency{
			modhost.Requires("logging", "1.0.0", ""),
			modhost.Optional("audit", "1.0.0", "1.9.9"),
		},
		Capabilities: []modhost.Capability{
			modhost.NewCapability("scheduled-reports", "Logs a periodic summary", "Reporting"),
		},
	}, m)
	if err := modhost.ProcessConfigDefaults(&m.settings); err != nil {
		return nil, err
	}
	m.BindSettings(&m.settings)
	return m, nil
}

func (m *ReportingModule) ValidateConfiguration() modhost.ValidationResult {
	result := m.BaseModule.ValidateConfiguration()
	if _, err := cron.ParseStandard(m.settings.Schedule); err != nil {
		result = result.Merge(modhost.ValidationFailure(fmt.Sprintf("invalid schedule %q: %v", m.settings.Schedule, err)))
	}
	return result
}

func (m *ReportingModule) OnModuleStartup(_ context.Context, services modhost.ServiceProvider) error {
	if loader, err := modhost.GetServiceAs[*modhost.Loader](services, modhost.ServiceLoader); err == nil {
		m.loader = loader
	}
	if services.HasService(AuditServiceName) {
		recorder, err := modhost.GetServiceAs[*Recorder](services, AuditServiceName)
		if err != nil {
			return fmt.Errorf("resolve audit recorder: %w", err)
		}
		m.recorder = recorder
	}
	if logging, err := modhost.GetServiceAs[*LoggingModule](services, LoggingServiceName); err == nil {
		m.logging = logging
	}

	c := cron.New()
	if _, err := c.AddFunc(m.settings.Schedule, m.RunReport); err != nil {
		return fmt.Errorf("schedule report: %w", err)
	}
	c.Start()

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	m.Logger().Info("Reporting scheduled", "schedule", m.settings.Schedule)
	return nil
}

func (m *ReportingModule) OnModuleShutdown(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running report: %w", ctx.Err())
	}
}

// RunReport builds and logs one report.
func (m *ReportingModule) RunReport() {
	var report Report
	if m.loader != nil {
		report.LoadedModules = m.loader.Len()
	}
	// Audit is optional and may have failed to start even though its
	// recorder service was registered.
	if m.recorder != nil && m.loader != nil && m.loader.IsModuleLoaded("audit") {
		report.AuditEntries = m.recorder.Len()
	}
	if m.logging != nil {
		report.Requests = m.logging.Requests()
	}

	m.mu.Lock()
	m.last = report
	m.runs++
	m.mu.Unlock()

	m.Logger().Info("Host report",
		"loadedModules", report.LoadedModules,
		"auditEntries", report.AuditEntries,
		"requests", report.Requests,
	)
}

// LastReport returns the most recent report and how many reports ran.
func (m *ReportingModule) LastReport() (Report, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.runs
}
