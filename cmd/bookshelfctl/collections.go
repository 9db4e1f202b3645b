package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bookshelf/internal/catalog"
)

func newSearchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Short:   "Search the remote catalog",
		Example: "  bookshelfctl search frank herbert",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			if c.Catalog == nil {
				return catalog.ErrNoProxy
			}
			results, err := c.Catalog.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "nothing found")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "  %-10s %s, %s\n", r.ID, r.Title, r.Author)
			}
			return nil
		},
	}
}

func newFavoriteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorite",
		Aliases: []string{"fav"},
		Short:   "Manage favorite books",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <book-id>",
		Short: "Star a book of the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			added, err := c.Collections.FavoriteBook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already a favorite\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s added to favorites\n", args[0])
			return nil
		},
	}, &cobra.Command{
		Use:   "remove <book-id>",
		Short: "Unstar a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			return c.Collections.RemoveFavorite(cmd.Context(), args[0])
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List favorites, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			faves, err := c.Collections.Favorites(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range faves {
				fmt.Fprintf(out, "  %-24s %s, %s\n", f.BookID, f.Title, f.Author)
			}
			fmt.Fprintf(out, "%d favorite(s)\n", len(faves))
			return nil
		},
	})
	return cmd
}

func newQuoteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Manage saved quotes",
	}

	var note, color string
	add := &cobra.Command{
		Use:     "add <book-id> <text>",
		Short:   "Save a passage of a book",
		Example: `  bookshelfctl quote add 123 "Fear is the mind-killer." --note litany`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			q, err := c.Collections.AddQuote(cmd.Context(), args[0], strings.Join(args[1:], " "), note, color)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved quote %s\n", q.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&note, "note", "n", "", "note attached to the quote")
	add.Flags().StringVar(&color, "color", "", "highlight color")

	var bookID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List quotes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			quotes, err := c.Collections.Quotes(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range quotes {
				saved := time.UnixMilli(q.CreatedAt).Format("2006-01-02")
				fmt.Fprintf(out, "%s  %s  %s\n  %q\n", q.ID, saved, q.BookTitle, q.Text)
				if q.Note != "" {
					fmt.Fprintf(out, "  note: %s\n", q.Note)
				}
			}
			return nil
		},
	}
	list.Flags().StringVarP(&bookID, "book", "b", "", "only quotes of this book")

	cmd.AddCommand(add, list, &cobra.Command{
		Use:   "delete <quote-id>",
		Short: "Delete a saved quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.open()
			if err != nil {
				return err
			}
			return c.Collections.DeleteQuote(cmd.Context(), args[0])
		},
	})
	return cmd
}
