package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bookshelf/internal/app"
	"bookshelf/internal/config"
	"bookshelf/internal/logging"
)

// env lazily opens the components shared by every subcommand
type env struct {
	verbose    bool
	components *app.Components
	logger     *zap.Logger
}

func (e *env) open() (*app.Components, error) {
	if e.components != nil {
		return e.components, nil
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := "warn"
	if e.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return nil, err
	}
	components, err := app.Open(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	e.logger = logger
	e.components = components
	return components, nil
}

func (e *env) close() {
	if e.components != nil {
		_ = e.components.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookshelfctl",
		Short:         "Manage the local bookshelf and its sync with the remote library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		newSyncCmd(e),
		newImportCmd(e),
		newExportCmd(e),
		newStatusCmd(e),
		newCacheCmd(e),
		newSearchCmd(e),
		newFavoriteCmd(e),
		newQuoteCmd(e),
	)
	return root
}

func main() {
	e := &env{}
	err := newRootCmd(e).Execute()
	e.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
