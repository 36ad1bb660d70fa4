package modhost

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DiscoverModules scans root recursively for package files matching the
// loader's pattern and builds a module from each. Packages that fail to load
// are logged and skipped. A missing or empty directory yields an empty
// slice; only a cancelled context returns an error.
func (l *Loader) DiscoverModules(ctx context.Context, root string) ([]Module, error) {
	modules := []Module{}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		l.logger.Warn("Module directory not found", "path", root)
		return modules, nil
	}

	paths, err := l.packagePaths(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		l.logger.Warn("No module packages found", "path", root, "pattern", l.pattern)
		return modules, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := l.LoadModuleFromPackage(ctx, path)
		if err != nil {
			l.logger.Warn("Skipping module package", "path", path, "error", err)
			continue
		}
		modules = append(modules, m)
	}

	l.logger.Info("Module discovery complete", "path", root, "candidates", len(paths), "discovered", len(modules))
	return modules, nil
}

// packagePaths lists matching files under root in lexical order.
func (l *Loader) packagePaths(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			l.logger.Warn("Cannot read module path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(l.pattern, d.Name()); ok {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// LoadModuleFromPackage reads one package manifest, resolves its entry point
// in the catalog and builds the module. When several listed entry points are
// registered the first one is used. The package handle is recorded under the
// module ID. On any failure the error is logged with the path and a nil
// module is returned.
func (l *Loader) LoadModuleFromPackage(ctx context.Context, path string) (Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, pkg, err := l.buildFromPackage(path)
	if err != nil {
		if errors.Is(err, ErrNoEntryPoint) {
			l.logger.Warn("No module entry point found in package", "path", path)
		} else {
			l.logger.Error("Failed to load module from package", "path", path, "error", err)
		}
		l.emit(ctx, EventTypeModuleDiscoveryFailed, ModuleEventData{Path: path, Phase: PhaseDiscovery, Error: err.Error()})
		return nil, err
	}

	id := m.ID()
	l.mu.Lock()
	if _, exists := l.packages[id]; exists {
		l.mu.Unlock()
		err := fmt.Errorf("%w: %s from %s", ErrDuplicateModuleID, id, path)
		l.logger.Error("Failed to load module from package", "path", path, "error", err)
		l.emit(ctx, EventTypeModuleDiscoveryFailed, ModuleEventData{ModuleID: id, Path: path, Phase: PhaseDiscovery, Error: err.Error()})
		return nil, err
	}
	l.packages[id] = pkg
	l.mu.Unlock()

	if pkg.Manifest.Disabled {
		if d, ok := m.(Disabler); ok {
			d.Disable(pkg.Manifest.DisabledReason)
		} else {
			l.logger.Warn("Package is disabled but the module cannot be disabled", "module", id, "path", path)
		}
	}

	l.logger.Info("Loaded module from package", "module", m.Name(), "version", m.Version(), "path", path)
	data := moduleEventData(m)
	data.Path = path
	l.emit(ctx, EventTypeModuleDiscovered, data)
	return m, nil
}

func (l *Loader) buildFromPackage(path string) (Module, *Package, error) {
	manifest, format, err := ReadManifest(path)
	if err != nil {
		return nil, nil, err
	}

	var resolved []string
	var factory Factory
	for _, entry := range manifest.Candidates() {
		f, ok := l.catalog.Lookup(entry)
		if !ok {
			l.logger.Warn("Entry point not registered", "entryPoint", entry, "path", path)
			continue
		}
		if factory == nil {
			factory = f
		}
		resolved = append(resolved, entry)
	}
	if factory == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, path)
	}
	if len(resolved) > 1 {
		l.logger.Warn("Multiple module entry points found, using first one",
			"path", path, "entryPoints", resolved, "using", resolved[0])
	}

	var m Module
	err = guard(func() error {
		var ferr error
		m, ferr = factory()
		return ferr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("entry point %s: %w", resolved[0], err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("%w: entry point %s", ErrFactoryReturnedNil, resolved[0])
	}
	if manifest.ID != "" && manifest.ID != m.ID() {
		return nil, nil, fmt.Errorf("%w: package declares %q, module is %q", ErrPackageIDMismatch, manifest.ID, m.ID())
	}
	if manifest.Version != "" && manifest.Version != m.Version() {
		return nil, nil, fmt.Errorf("%w: package declares %q, module is %q", ErrPackageVersionMismatch, manifest.Version, m.Version())
	}

	return m, &Package{
		Path:       path,
		Format:     format,
		Manifest:   manifest,
		EntryPoint: resolved[0],
		LoadedAt:   time.Now(),
	}, nil
}
