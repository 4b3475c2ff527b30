package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/metcalfc/flick/internal/service"
)

func newLibraryCommand(app *appContext) *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage the book library",
	}

	libraryCmd.AddCommand(newLibraryListCommand(app))
	libraryCmd.AddCommand(newLibraryAddCommand(app))
	libraryCmd.AddCommand(newLibraryScanCommand(app))
	libraryCmd.AddCommand(newLibraryRemoveCommand(app))
	libraryCmd.AddCommand(newLibrarySearchCommand(app))
	libraryCmd.AddCommand(newLibraryShowCommand(app))
	libraryCmd.AddCommand(newLibraryHistoryCommand(app))

	return libraryCmd
}

var bookColumns = []string{"ID", "Title", "Author", "Progress", "Words", "Last Read"}

func bookRows(items []service.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		title := it.Title
		if !it.Available {
			title += " (missing)"
		}
		rows = append(rows, []string{
			shortID(it.ID),
			title,
			it.Author,
			formatPercent(it.Percent()),
			humanize.Comma(int64(it.TotalTokens)),
			formatLastRead(it.Progress.UpdatedAt),
		})
	}
	return rows
}

func writeBooks(cmd *cobra.Command, items []service.Item, empty string) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	writeTable(out, bookColumns, bookRows(items),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}

func newLibraryListCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List books, most recently read first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				items, err := lib.List(cmd.Context())
				if err != nil {
					return err
				}
				writeBooks(cmd, items, "Library is empty")
				return nil
			})
		},
	}
}

func newLibraryAddCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Import EPUB files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				failed := 0
				for _, path := range args {
					entry, err := lib.Import(cmd.Context(), path)
					if err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "Failed %s: %v\n", path, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s, %s words)\n",
						entry.Title, shortID(entry.ID), humanize.Comma(int64(entry.TotalTokens)))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d books could not be imported", failed, len(args))
				}
				return nil
			})
		},
	}
}

func newLibraryScanCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Import every EPUB under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				result, err := lib.Scan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Found %d books: %d imported, %d failed\n",
					result.Found, len(result.Imported), len(result.Failed))
				for path, ferr := range result.Failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed %s: %v\n", path, ferr)
				}
				return nil
			})
		},
	}
}

func newLibraryRemoveCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id|file>",
		Aliases: []string{"rm"},
		Short:   "Remove a book and its progress (the file is kept)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				entry, err := lib.Find(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := lib.Remove(cmd.Context(), entry.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", entry.Title, shortID(entry.ID))
				return nil
			})
		},
	}
}

func newLibrarySearchCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-search titles and authors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				items, err := lib.Search(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				writeBooks(cmd, items, "No matching books")
				return nil
			})
		},
	}
}

func newLibraryShowCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|file>",
		Short: "Show a book's details and chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				entry, err := lib.Find(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				book, entry, err := lib.Book(cmd.Context(), entry.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Title:    %s\n", book.Title)
				if book.Author != "" {
					fmt.Fprintf(out, "Author:   %s\n", book.Author)
				}
				fmt.Fprintf(out, "ID:       %s\n", entry.ID)
				fmt.Fprintf(out, "File:     %s (%s)\n", entry.Path, humanize.Bytes(uint64(max(entry.FileSize, 0))))
				fmt.Fprintf(out, "Words:    %s\n", humanize.Comma(int64(book.Total())))
				fmt.Fprintf(out, "Progress: %s (word %d), last read %s\n",
					formatPercent(entry.Percent()), entry.Progress.Index, formatLastRead(entry.Progress.UpdatedAt))
				fmt.Fprintln(out)

				rows := make([][]string, 0, len(book.Chapters))
				for _, ch := range book.Chapters {
					rows = append(rows, []string{
						fmt.Sprintf("%d", ch.Index+1),
						ch.Title,
						fmt.Sprintf("%d", ch.Start),
						fmt.Sprintf("%d", ch.End()),
						humanize.Comma(int64(ch.Count)),
					})
				}
				writeTable(out, []string{"#", "Chapter", "Start", "End", "Words"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight})
				return nil
			})
		},
	}
}

func newLibraryHistoryCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id|file>",
		Short: "Show past reading sessions of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				entry, err := lib.Find(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sessions, err := lib.Store().Sessions(cmd.Context(), entry.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintf(out, "No reading sessions for %s\n", entry.Title)
					return nil
				}

				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.StartedAt.Local().Format("2006-01-02 15:04"),
						s.EndedAt.Sub(s.StartedAt).Round(time.Second).String(),
						humanize.Comma(int64(s.WordsRead)),
						fmt.Sprintf("%d → %d", s.StartIndex, s.EndIndex),
						fmt.Sprintf("%d", s.AverageWPM),
					})
				}
				writeTable(out, []string{"Started", "Duration", "Words", "Range", "WPM"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight})
				return nil
			})
		},
	}
}
