package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bookshelf/internal/models"
)

func newSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Reconcile the local library with the remote library store",
		Example: "  bookshelfctl sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			report, err := c.Engine.Reconcile(cmd.Context(), c.Config.UserID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "uploaded %d, deleted %d, dropped %d\n", report.UploadsDrained, report.DeletionsDrained, report.UploadsDropped)
			fmt.Fprintf(out, "pulled %d, removed %d\n", len(report.Pulled), len(report.Removed))
			fmt.Fprintf(out, "progress pulled %d, pushed %d\n", report.ProgressPulled, report.ProgressPushed)
			if report.Failures > 0 {
				fmt.Fprintf(out, "%d remote call(s) failed, pending items kept for the next sync\n", report.Failures)
			}
			return nil
		},
	}
}

func newImportCmd(e *env) *cobra.Command {
	var formatFlag string
	cmd := &cobra.Command{
		Use:     "import <file>",
		Short:   "Add a local book file to the library",
		Example: "  bookshelfctl import manual.pdf",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := formatFlag
			if name == "" {
				name = strings.TrimPrefix(filepath.Ext(path), ".")
			}
			format, err := models.ParseFormat(name)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			c, err := e.open()
			if err != nil {
				return err
			}
			entry, err := c.Library.Import(cmd.Context(), data, format, filepath.Base(path))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %q as %s (queued for upload)\n", entry.Info().Title, entry.Info().ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "book format (fb2 or pdf); defaults to the file extension")
	return cmd
}

func newExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "export <zip>",
		Short:   "Write every cached book into a ZIP archive",
		Example: "  bookshelfctl export library.zip",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			n, err := c.Library.Export(cmd.Context(), f)
			if cerr := f.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d book(s) to %s\n", n, args[0])
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the library and pending remote changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			books := c.Library.Books()
			fmt.Fprintf(out, "user %s, %d book(s)\n", c.Config.UserID, len(books))
			for _, b := range books {
				info := b.Info()
				line := fmt.Sprintf("  %-24s %-4s %s", info.ID, b.Format(), info.Title)
				if p, ok := c.Library.Progress(info.ID); ok && p.TotalPages > 0 {
					line += fmt.Sprintf(" [%d%%]", p.Percentage())
				}
				if !c.Library.IsCached(ctx, info.ID) {
					line += " (not cached)"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "pending uploads: %s\n", joinOrNone(c.Local.PendingUploads()))
			fmt.Fprintf(out, "pending deletions: %s\n", joinOrNone(c.Local.PendingDeletions()))
			return nil
		},
	}
}

func newCacheCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the binary book cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached book payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			c.Cache.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})
	return cmd
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
