package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/events"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/prefs"
	"github.com/driveindex/drive-index/internal/state"
)

// maxPasswordAttempts bounds the prompt loop for protected folders.
const maxPasswordAttempts = 3

// passwordPrompter asks for a folder password. Swapped out in tests.
var passwordPrompter = func(out io.Writer, loc pathcodec.Location) (string, error) {
	return promptPassword(out, fmt.Sprintf("Password for %s: ", loc.Pathname()))
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var all bool
	var long bool
	var plain bool
	var sorted bool
	var layout string

	cmd := &cobra.Command{
		Use:   "ls [pathname]",
		Short: "List a folder",
		Long: `List the contents of a folder.

The worker returns folders a page at a time. By default only the first page
is shown; use --all to follow continuation tokens to the end.

Examples:
  drive-index ls
  drive-index ls /1:/Shared/
  drive-index ls "docs/My Reports" --all --long
  drive-index ls /0:/ --plain | cut -f1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}

			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			loc := resolveLocation(arg, sess.cfg.DefaultDrive)

			ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
			defer ctrl.Close()

			ctx := GetContext()
			if err := openFolder(ctx, cmd.ErrOrStderr(), sess.prefs, ctrl, loc); err != nil {
				return err
			}
			if all {
				if err := loadAllPages(ctx, ctrl); err != nil {
					return err
				}
			}

			view, err := viewFromPrefs(sess.prefs, layout, long, plain)
			if err != nil {
				return err
			}

			snap := ctrl.Snapshot()
			files := snap.Files
			if sorted {
				files = ctrl.Sorted()
			}

			out := cmd.OutOrStdout()
			if !plain {
				fmt.Fprintf(out, "%s %s\n", headerStyle.Render(sess.cfg.DriveName(loc.Drive)), loc.Path)
			}
			renderFiles(out, files, view)
			if snap.HasMore() && !plain {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d entries shown, more available (use --all)", len(files))))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Load every page")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show file IDs")
	cmd.Flags().BoolVar(&plain, "plain", false, "Tab-separated output without styling")
	cmd.Flags().BoolVarP(&sorted, "sort", "s", false, "Folders first, then natural name order")
	cmd.Flags().StringVar(&layout, "layout", "", "Override the saved layout (list or grid)")

	return cmd
}

// viewFromPrefs builds the listing view from saved preferences and flags.
func viewFromPrefs(store *prefs.Store, layout string, long, plain bool) (listingView, error) {
	view := listingView{
		Layout:       store.Layout(),
		ShowModified: store.ShowModifiedColumn(),
		ShowIDs:      long,
		Plain:        plain,
	}
	if layout != "" {
		l, err := prefs.ParseLayout(layout)
		if err != nil {
			return view, err
		}
		view.Layout = l
	}
	return view, nil
}

// openFolder navigates ctrl to loc, prompting for a password while the
// worker reports the folder as protected. A password that works is cached.
func openFolder(ctx context.Context, out io.Writer, store *prefs.Store, ctrl *state.ListingController, loc pathcodec.Location) error {
	err := ctrl.Navigate(ctx, loc)
	for attempt := 0; attempt < maxPasswordAttempts && api.IsPasswordRequired(err); attempt++ {
		if attempt > 0 {
			printWarning(out, "Wrong password")
		}
		password, perr := passwordPrompter(out, loc.Folder())
		if perr != nil {
			return perr
		}
		if password == "" {
			return err
		}
		ctrl.SetPassword(password)
		if err = ctrl.Retry(ctx); err == nil {
			if serr := store.SetPassword(loc.Drive, loc.Path, password); serr != nil {
				GetLogger().Warn().Err(serr).Msg("failed to cache folder password")
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", loc.Folder().Pathname(), err)
	}
	return nil
}

// loadAllPages follows continuation tokens until the listing is complete.
func loadAllPages(ctx context.Context, ctrl *state.ListingController) error {
	for {
		err := ctrl.LoadMore(ctx)
		if errors.Is(err, state.ErrNoMorePages) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load page %d: %w", ctrl.Snapshot().PageIndex+1, err)
		}
	}
}

// findEntry looks up a file by name in a folder, loading further pages until
// it is found or the listing ends.
func findEntry(ctx context.Context, ctrl *state.ListingController, name string) (models.DriveFile, bool, error) {
	for {
		if f, ok := ctrl.FindByName(name); ok {
			return f, true, nil
		}
		err := ctrl.LoadMore(ctx)
		if errors.Is(err, state.ErrNoMorePages) {
			return models.DriveFile{}, false, nil
		}
		if err != nil {
			return models.DriveFile{}, false, err
		}
	}
}

// reportMutationFailures prints mutation_failed events until the channel closes.
func reportMutationFailures(out io.Writer, ch <-chan events.Event) {
	for ev := range ch {
		failed, ok := ev.(*events.MutationFailedEvent)
		if !ok {
			continue
		}
		if failed.RolledBack {
			printWarning(out, "%s of %s failed, listing restored: %v", failed.Operation, failed.FileID, failed.Error)
		} else {
			printWarning(out, "%s of %s failed: %v", failed.Operation, failed.FileID, failed.Error)
		}
	}
}
