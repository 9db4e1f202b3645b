package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bookshelf/internal/config"
	"bookshelf/internal/logging"
	"bookshelf/migrations"
)

// migrator connects lazily so `create` works without a server
type migrator struct {
	logger *zap.Logger
	db     *sql.DB
}

func (m *migrator) provider(ctx context.Context) (*goose.Provider, error) {
	if m.db == nil {
		cfg, err := config.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		host := cfg.ClickHouseHost
		if host == "" {
			host = "localhost"
		}
		db, err := migrations.Open(ctx, migrations.Target{
			Host:     host,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
			TLS:      cfg.ClickHouseUseTLS,
		})
		if err != nil {
			return nil, err
		}
		m.logger.Info("Connected to ClickHouse", zap.String("host", host), zap.Int("port", cfg.ClickHousePort))
		m.db = db
	}
	return migrations.Provider(m.db)
}

func (m *migrator) close() {
	if m.db != nil {
		_ = m.db.Close()
	}
	_ = m.logger.Sync()
}

func (m *migrator) logResult(r *goose.MigrationResult) {
	if r == nil || r.Source == nil {
		return
	}
	m.logger.Info("Migration applied",
		zap.Int64("version", r.Source.Version),
		zap.String("file", r.Source.Path),
		zap.String("direction", r.Direction),
		zap.Duration("duration", r.Duration),
	)
}

func newRootCmd(m *migrator) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the ClickHouse schema of the remote library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := m.provider(cmd.Context())
			if err != nil {
				return err
			}
			results, err := p.Up(cmd.Context())
			for _, r := range results {
				m.logResult(r)
			}
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			m.logger.Info("Migrations completed", zap.Int("applied", len(results)))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := m.provider(cmd.Context())
			if err != nil {
				return err
			}
			r, err := p.Down(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to roll back: %w", err)
			}
			m.logResult(r)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := m.provider(cmd.Context())
			if err != nil {
				return err
			}
			statuses, err := p.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				applied := "pending"
				if !s.AppliedAt.IsZero() {
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%-6d %-45s %s\n", s.Source.Version, s.Source.Path, applied)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := m.provider(cmd.Context())
			if err != nil {
				return err
			}
			v, err := p.GetDBVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Write a new empty SQL migration into " + migrations.Dir,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := goose.Create(nil, migrations.Dir, args[0], "sql"); err != nil {
				return fmt.Errorf("failed to create migration: %w", err)
			}
			return nil
		},
	})

	return root
}

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"), true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	m := &migrator{logger: logger}

	err = newRootCmd(m).ExecuteContext(context.Background())
	m.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
