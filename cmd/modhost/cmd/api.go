package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/modhost"
)

type moduleView struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Version      string               `json:"version"`
	Description  string               `json:"description,omitempty"`
	Author       string               `json:"author,omitempty"`
	Priority     string               `json:"priority"`
	Status       string               `json:"status"`
	Dependencies []modhost.Dependency `json:"dependencies"`
	Capabilities []modhost.Capability `json:"capabilities"`
	Package      string               `json:"package,omitempty"`
	EntryPoint   string               `json:"entryPoint,omitempty"`
}

func newModuleView(loader *modhost.Loader, m modhost.Module) moduleView {
	v := moduleView{
		ID:           m.ID(),
		Name:         m.Name(),
		Version:      m.Version(),
		Description:  m.Description(),
		Author:       m.Author(),
		Priority:     m.Priority().String(),
		Status:       m.Status().String(),
		Dependencies: append([]modhost.Dependency{}, m.Dependencies()...),
		Capabilities: append([]modhost.Capability{}, m.Capabilities()...),
	}
	if pkg, ok := loader.Package(m.ID()); ok {
		v.Package = pkg.Path
		v.EntryPoint = pkg.EntryPoint
	}
	return v
}

// mountAPI adds the introspection routes to r. It must run after module
// middleware has been installed.
func mountAPI(r chi.Router, loader *modhost.Loader, gatherer prometheus.Gatherer) {
	r.Get("/modules", func(w http.ResponseWriter, _ *http.Request) {
		modules := loader.Modules()
		views := make([]moduleView, 0, len(modules))
		for _, m := range modules {
			views = append(views, newModuleView(loader, m))
		}
		writeJSON(w, http.StatusOK, views)
	})

	r.Get("/modules/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		m, ok := loader.GetModule(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "module not loaded: " + id})
			return
		}
		writeJSON(w, http.StatusOK, newModuleView(loader, m))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
