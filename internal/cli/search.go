package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/state"
)

// newSearchCmd creates the 'search' command.
func newSearchCmd() *cobra.Command {
	var all bool
	var long bool
	var plain bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a drive",
		Long: `Search file names on a drive. Results keep the worker's order.

Examples:
  drive-index search report
  drive-index search "quarterly report" --drive 1 --all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			search := state.NewSearchSession(sess.client, nil, sess.cfg.DefaultDrive, sess.cfg.SearchDebounce, GetLogger())
			defer search.Close()

			ctx := GetContext()
			if err := search.Search(ctx, query); err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if all {
				for {
					err := search.LoadMore(ctx)
					if errors.Is(err, state.ErrNoMorePages) || errors.Is(err, state.ErrInvalidTransition) {
						break
					}
					if err != nil {
						return fmt.Errorf("search failed: %w", err)
					}
				}
			}

			view, err := viewFromPrefs(sess.prefs, "", long, plain)
			if err != nil {
				return err
			}

			res := search.Results()
			out := cmd.OutOrStdout()
			if !plain {
				fmt.Fprintf(out, "%s %q\n", headerStyle.Render(sess.cfg.DriveName(sess.cfg.DefaultDrive)), res.Query)
			}
			renderFiles(out, res.Files, view)
			if res.HasMore() && !plain {
				fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d results shown, more available (use --all)", len(res.Files))))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Load every page of results")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show file IDs")
	cmd.Flags().BoolVar(&plain, "plain", false, "Tab-separated output without styling")

	return cmd
}
