package builtin

import (
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/modhost"
)

// LoggingServiceName is the service the logging module registers itself as.
const LoggingServiceName = "logging"

// LoggingSettings configures the request logger.
type LoggingSettings struct {
	SkipPaths []string `yaml:"skip_paths" default:"/metrics"`
}

// LoggingModule logs every HTTP request handled by the host router.
type LoggingModule struct {
	*modhost.BaseModule
	settings LoggingSettings
	requests atomic.Int64
}

// NewLogging is the factory of the logging module.
func NewLogging() (modhost.Module, error) {
	m := &LoggingModule{}
	m.BaseModule = modhost.NewBaseModule(modhost.ModuleInfo{
		ID:          "logging",
		Name:        "Logging",
		Version:     "1.2.0",
		Description: "Structured request logging",
		Author:      "modhost",
		Priority:    modhost.PriorityCritical,
		Capabilities: []modhost.Capability{
			modhost.NewCapability("request-logging", "Logs method, path, status and duration of each request", "Observability"),
		},
	}, m)
	if err := modhost.ProcessConfigDefaults(&m.settings); err != nil {
		return nil, err
	}
	m.BindSettings(&m.settings)
	return m, nil
}

func (m *LoggingModule) ConfigureServices(services modhost.ServiceCollection) error {
	return m.RegisterService(services, LoggingServiceName, m)
}

func (m *LoggingModule) ConfigureMiddleware(r chi.Router) error {
	r.Use(m.middleware)
	return nil
}

// Requests returns the number of requests logged so far.
func (m *LoggingModule) Requests() int64 {
	return m.requests.Load()
}

func (m *LoggingModule) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slices.Contains(m.settings.SkipPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		m.requests.Add(1)
		m.Logger().Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
