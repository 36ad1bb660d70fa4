package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/schema"
)

// AuditServiceName is the service the audit recorder is registered as.
const AuditServiceName = "audit.recorder"

const auditTable = "audit_entries"

// AuditSettings configures the audit module.
type AuditSettings struct {
	Retention time.Duration `yaml:"retention" default:"720h"`
	Capacity  int           `yaml:"capacity" default:"1000"`
}

// Entry is one audit record.
type Entry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Detail     string    `json:"detail"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Recorder keeps recent audit entries in memory and, when a database is
// attached, persists them to the audit_entries table.
type Recorder struct {
	mu        sync.Mutex
	entries   []Entry
	capacity  int
	retention time.Duration
	db        *sql.DB
	now       func() time.Time
}

// NewRecorder creates a recorder keeping at most capacity entries no older
// than retention.
func NewRecorder(capacity int, retention time.Duration) *Recorder {
	return &Recorder{capacity: capacity, retention: retention, now: time.Now}
}

// Attach sets the database entries are persisted to.
func (r *Recorder) Attach(db *sql.DB) {
	r.mu.Lock()
	r.db = db
	r.mu.Unlock()
}

// Record stores an entry and returns it.
func (r *Recorder) Record(ctx context.Context, kind, subject, detail string) (Entry, error) {
	entry := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Subject:    subject,
		Detail:     detail,
		RecordedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.prune(entry.RecordedAt)
	db := r.db
	r.mu.Unlock()

	if db == nil {
		return entry, nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO "`+auditTable+`" ("id", "kind", "subject", "detail", "recorded_at") VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.Subject, entry.Detail, entry.RecordedAt)
	if err != nil {
		return entry, fmt.Errorf("persist audit entry: %w", err)
	}
	return entry, nil
}

// prune drops entries past the retention window or over capacity. Callers
// hold r.mu.
func (r *Recorder) prune(now time.Time) {
	if r.retention > 0 {
		cutoff := now.Add(-r.retention)
		i := 0
		for i < len(r.entries) && r.entries[i].RecordedAt.Before(cutoff) {
			i++
		}
		r.entries = r.entries[i:]
	}
	if r.capacity > 0 && len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// AuditModule records HTTP requests and module lifecycle events.
type AuditModule struct {
	*modhost.BaseModule
	settings AuditSettings
	recorder *Recorder
	loader   *modhost.Loader
}

// NewAudit is the factory of the audit module.
func NewAudit() (modhost.Module, error) {
	m := &AuditModule{}
	m.BaseModule = modhost.NewBaseModule(modhost.ModuleInfo{
		ID:          "audit",
		Name:        "Audit",
		Version:     "1.0.0",
		Description: "Audit trail of requests and module lifecycle events",
		Author:      "modhost",
		Priority:    modhost.PriorityHigh,
		Dependencies: []modhost.Dependency{
			modhost.Requires("logging", "1.0.0", ""),
		},
		Capabilities: []modhost.Capability{
			modhost.NewCapability("audit-trail", "Records requests and lifecycle events", "Compliance"),
		},
		ExportedTypes: []reflect.Type{reflect.TypeOf((*Recorder)(nil))},
	}, m)
	if err := modhost.ProcessConfigDefaults(&m.settings); err != nil {
		return nil, err
	}
	m.BindSettings(&m.settings)
	return m, nil
}

// Recorder returns the recorder created by ConfigureServices.
func (m *AuditModule) Recorder() *Recorder {
	return m.recorder
}

func (m *AuditModule) ValidateConfiguration() modhost.ValidationResult {
	result := m.BaseModule.ValidateConfiguration()
	if m.settings.Capacity < 1 {
		result = result.Merge(modhost.ValidationFailure("capacity must be at least 1"))
	}
	if m.settings.Retention < time.Hour {
		result = result.Merge(modhost.ValidationSuccess("retention under one hour discards entries quickly"))
	}
	return result
}

func (m *AuditModule) ConfigureServices(services modhost.ServiceCollection) error {
	m.recorder = NewRecorder(m.settings.Capacity, m.settings.Retention)
	return m.RegisterService(services, AuditServiceName, m.recorder)
}

func (m *AuditModule) ConfigureSchema(b *schema.Builder) error {
	return b.Entity("AuditEntry", func(e *schema.EntityBuilder) {
		e.Table("entries", "audit").
			Column("id", "TEXT", schema.NotNull()).
			Column("kind", "TEXT", schema.NotNull()).
			Column("subject", "TEXT").
			Column("detail", "TEXT").
			Column("recorded_at", "TIMESTAMP", schema.NotNull()).
			Key("id").
			Index("kind", "recorded_at")
	})
}

func (m *AuditModule) ConfigureMiddleware(r chi.Router) error {
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			if m.recorder == nil || m.Status() != modhost.StatusRunning {
				return
			}
			if _, err := m.recorder.Record(req.Context(), "http", req.URL.Path, req.Method); err != nil {
				m.Logger().Warn("Failed to record audit entry", "error", err)
			}
		})
	})
	return nil
}

func (m *AuditModule) OnModuleStartup(_ context.Context, services modhost.ServiceProvider) error {
	if m.recorder == nil {
		return fmt.Errorf("audit recorder not configured")
	}
	if services.HasService(modhost.ServiceDB) {
		db, err := modhost.GetServiceAs[*sql.DB](services, modhost.ServiceDB)
		if err != nil {
			return fmt.Errorf("resolve database: %w", err)
		}
		m.recorder.Attach(db)
	}

	if services.HasService(modhost.ServiceLoader) {
		loader, err := modhost.GetServiceAs[*modhost.Loader](services, modhost.ServiceLoader)
		if err != nil {
			return fmt.Errorf("resolve loader: %w", err)
		}
		m.loader = loader
		if err := loader.RegisterObserver(m,
			modhost.EventTypeModuleStarted,
			modhost.EventTypeModuleFailed,
			modhost.EventTypeModuleSkipped,
			modhost.EventTypeModuleStopped,
			modhost.EventTypeModuleStopFailed,
		); err != nil {
			return fmt.Errorf("observe loader: %w", err)
		}
	}
	return nil
}

func (m *AuditModule) OnModuleShutdown(context.Context) error {
	if m.loader != nil {
		return m.loader.UnregisterObserver(m)
	}
	return nil
}

// ObserverID implements modhost.Observer.
func (m *AuditModule) ObserverID() string {
	return "audit"
}

// OnEvent records loader events as "module" entries.
func (m *AuditModule) OnEvent(ctx context.Context, event cloudevents.Event) error {
	data, err := modhost.ModuleEvent(event)
	if err != nil {
		return err
	}
	detail := event.Type()
	if data.Error != "" {
		detail += ": " + data.Error
	}
	_, err = m.recorder.Record(ctx, "module", data.ModuleID, detail)
	return err
}
