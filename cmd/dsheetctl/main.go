// Package main provides dsheetctl, the registry maintenance CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rpggio/dsheet/internal/attachment"
	"github.com/rpggio/dsheet/internal/config"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/store"
	"github.com/spf13/cobra"
)

var version = "dev"

// app holds the services every subcommand works through.
type app struct {
	repos    *store.Repositories
	items    *item.Service
	projects *project.Service
	access   *access.Service
	logger   *slog.Logger
}

func main() {
	root, closeApp := newRootCmd()
	err := root.Execute()
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The returned func closes whatever a
// command opened, including after a failed run.
func newRootCmd() (*cobra.Command, func() error) {
	var (
		a       app
		verbose bool
	)

	root := &cobra.Command{
		Use:   "dsheetctl",
		Short: "Maintain dsheet item registries",
		Long: `dsheetctl works directly against the configured dsheet database.

Configuration is read the same way as the server: DSHEET_CONFIG_PATH names an
optional YAML file and DSHEET_* variables override it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cmd.ErrOrStderr(), verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newListCmd(&a),
		newRenumberCmd(&a),
		newExportCmd(&a),
		newImportCmd(&a),
		newSweepCmd(&a),
		newProjectCmd(&a),
		newTokenCmd(&a),
	)
	return root, a.close
}

func (a *app) open(ctx context.Context, logOut io.Writer, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	repos, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	files, err := attachment.NewOS(cfg.Storage.Root, cfg.Storage.MaxPixels, a.logger)
	if err != nil {
		_ = repos.Close(ctx)
		return fmt.Errorf("open image storage: %w", err)
	}

	a.repos = repos
	a.projects = project.NewService(repos.Projects, a.logger)
	a.access = access.NewService(repos.Access, a.logger)
	a.items = item.NewService(repos.Items, repos.Projects, files, repos.Activity, a.logger)
	return nil
}

func (a *app) close() error {
	if a.repos == nil {
		return nil
	}
	err := a.repos.Close(context.Background())
	a.repos = nil
	return err
}
