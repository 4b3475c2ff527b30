package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metcalfc/flick/internal/reader"
	"github.com/metcalfc/flick/internal/service"
)

// readOptions are the reading flags shared by the TUI and GUI front ends.
type readOptions struct {
	WPM     int
	Fresh   bool
	ShowTOC bool
}

func newRootCommand() (*cobra.Command, *appContext) {
	var configFlag string
	var opts readOptions

	app := newAppContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "flick [file|id]",
		Short: "Speed-read EPUB books one word at a time",
		Long: `flick shows a book one word at a time at a fixed point on screen,
remembering where you stopped in every book of your library.

With no argument the library browser opens. A path imports and opens that
book; anything else is taken as a library id or unique id prefix.

Supported formats: ` + strings.Join(reader.SupportedFormats(), ", "),
		Example: `  flick book.epub            Read a book at the configured rate
  flick -w 500 book.epub     Read at 500 WPM
  flick --toc 3fa9           Open a library book with the contents shown
  flick library scan ~/Books Import every EPUB under a directory`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withLibrary(cmd, func(lib *service.Library) error {
				if len(args) == 0 {
					return runBrowser(cmd.Context(), lib, opts)
				}
				entry, err := lib.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return runReader(cmd.Context(), lib, entry.ID, opts)
			})
		},
	}
	rootCmd.SetVersionTemplate("flick {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().IntVarP(&opts.WPM, "wpm", "w", 0, "Words per minute (default: saved rate, then config)")
	rootCmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "Ignore the saved reading position")
	rootCmd.Flags().BoolVar(&opts.ShowTOC, "toc", false, "Show the table of contents at startup")

	rootCmd.AddCommand(newLibraryCommand(app))

	return rootCmd, app
}
