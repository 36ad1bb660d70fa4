package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/cmd/modhost/internal/builtin"
	"github.com/GoCodeAlone/modhost/cmd/modhost/internal/watch"
)

// NewDiscoverCommand creates the discover command
func NewDiscoverCommand() *cobra.Command {
	var (
		pattern string
		watchFS bool
	)

	cmd := &cobra.Command{
		Use:   "discover [path]",
		Short: "List the modules found under a directory",
		Long: `Scan a directory for module packages and list the modules they build
without starting them. With --watch the list is printed again whenever
a package file changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := modhost.DefaultConfig().ModulesPath
			if len(args) == 1 {
				root = args[0]
			}
			logger, err := newLogger(cmd, "warn")
			if err != nil {
				return err
			}

			list := func(ctx context.Context) error {
				loader := modhost.NewLoader(logger,
					modhost.WithCatalog(builtin.Catalog()),
					modhost.WithPackagePattern(pattern))
				modules, err := loader.DiscoverModules(ctx, root)
				if err != nil {
					return err
				}
				printModules(cmd.OutOrStdout(), loader, modules)
				return nil
			}

			if err := list(cmd.Context()); err != nil {
				return err
			}
			if !watchFS {
				return nil
			}

			w, err := watch.New(watch.Config{
				Root:    root,
				Pattern: pattern,
				OnChange: func(ctx context.Context, changed []string) {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%d package file(s) changed\n", len(changed))
					if err := list(ctx); err != nil {
						logger.Error("Rediscovery failed", "error", err)
					}
				},
				OnError: func(err error) {
					logger.Warn("Watcher error", "error", err)
				},
			})
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", modhost.DefaultPackagePattern, "package file name pattern")
	cmd.Flags().BoolVarP(&watchFS, "watch", "w", false, "re-list modules when package files change")

	return cmd
}

func printModules(out io.Writer, loader *modhost.Loader, modules []modhost.Module) {
	if len(modules) == 0 {
		fmt.Fprintln(out, "No modules found")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tPRIORITY\tSTATUS\tENTRY POINT\tDEPENDENCIES")
	for _, m := range modhost.LoadOrder(modules) {
		entry := "-"
		if pkg, ok := loader.Package(m.ID()); ok {
			entry = pkg.EntryPoint
		}
		var deps []string
		for _, d := range m.Dependencies() {
			deps = append(deps, d.String())
		}
		depList := "-"
		if len(deps) > 0 {
			depList = strings.Join(deps, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID(), m.Name(), m.Version(), m.Priority(), m.Status(), entry, depList)
	}
	_ = tw.Flush()
}
