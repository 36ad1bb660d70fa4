package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/cmd/modhost/internal/builtin"
	"github.com/GoCodeAlone/modhost/metrics"
)

// serverShutdownGrace bounds draining of in-flight HTTP requests.
const serverShutdownGrace = 10 * time.Second

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var configPath, modulesPath, dsn, listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the modules and serve HTTP until interrupted",
		Long: `Discover the modules under the modules directory, start them in priority
order and serve the host router. On SIGINT or SIGTERM the server drains
and the modules are stopped in reverse order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := modhost.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("modules") {
				cfg.ModulesPath = modulesPath
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabaseDSN = dsn
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}

			logger, err := newLogger(cmd, cfg.LogLevel)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg, logger, nil)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")
	cmd.Flags().StringVarP(&modulesPath, "modules", "m", "", "modules directory")
	cmd.Flags().StringVar(&dsn, "db", "", "SQLite DSN the module schema is applied to")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address")

	return cmd
}

// runHost boots the host and serves until ctx is done. A nil listener
// listens on cfg.ListenAddr.
func runHost(ctx context.Context, cfg *modhost.Config, logger modhost.Logger, ln net.Listener) error {
	if logger == nil {
		logger = modhost.NopLogger{}
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewWithRegistry(reg)

	loader := modhost.NewLoader(logger, append(cfg.LoaderOptions(), modhost.WithCatalog(builtin.Catalog()))...)
	if err := loader.RegisterObserver(collector); err != nil {
		return err
	}

	var hostOpts []modhost.HostOption
	if cfg.DatabaseDSN != "" {
		db, err := sql.Open("sqlite3", cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		hostOpts = append(hostOpts, modhost.WithDB(db))
	}

	host, err := modhost.NewHost(logger, loader, hostOpts...)
	if err != nil {
		return err
	}

	if err := host.Boot(ctx, cfg.ModulesPath); err != nil {
		if !errors.Is(err, modhost.ErrDuplicateModuleID) || ctx.Err() != nil {
			host.Shutdown(context.Background())
			return fmt.Errorf("boot: %w", err)
		}
		logger.Warn("Some modules were skipped", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace+cfg.ShutdownTimeout)
		defer cancel()
		host.Shutdown(shutdownCtx)
	}()

	mountAPI(host.Router(), loader, reg)

	if ln == nil {
		ln, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	srv := &http.Server{
		Handler:           host.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Serving", "addr", ln.Addr().String(), "modules", loader.Len())
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
