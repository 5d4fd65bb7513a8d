package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/prefs"
)

// newPrefsCmd creates the 'prefs' command group.
func newPrefsCmd() *cobra.Command {
	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "View and change saved client preferences",
		Long: `Client preferences persisted between runs.

Commands:
  show             - Display saved preferences
  layout           - Get or set the listing layout (list or grid)
  show-modified    - Get or set whether the Modified column is shown
  forget-password  - Drop the cached password of a folder`,
	}

	prefsCmd.AddCommand(newPrefsShowCmd())
	prefsCmd.AddCommand(newPrefsLayoutCmd())
	prefsCmd.AddCommand(newPrefsShowModifiedCmd())
	prefsCmd.AddCommand(newPrefsForgetPasswordCmd())

	return prefsCmd
}

func newPrefsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display saved preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := prefs.Open(stateFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State file:       %s\n", store.Path())
			fmt.Fprintf(out, "Layout:           %s\n", store.Layout())
			fmt.Fprintf(out, "Modified column:  %t\n", store.ShowModifiedColumn())
			return nil
		},
	}
}

func newPrefsLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "layout [list|grid]",
		Short:     "Get or set the listing layout",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(prefs.LayoutList), string(prefs.LayoutGrid)},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := prefs.Open(stateFile)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), store.Layout())
				return nil
			}

			l, err := prefs.ParseLayout(args[0])
			if err != nil {
				return err
			}
			if err := store.SetLayout(l); err != nil {
				return fmt.Errorf("failed to save layout: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Layout set to %s\n", l)
			return nil
		},
	}
}

func newPrefsShowModifiedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-modified [true|false]",
		Short: "Get or set whether the Modified column is shown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := prefs.Open(stateFile)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), store.ShowModifiedColumn())
				return nil
			}

			show, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q (want true or false)", args[0])
			}
			if err := store.SetShowModifiedColumn(show); err != nil {
				return fmt.Errorf("failed to save preference: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Modified column %t\n", show)
			return nil
		},
	}
}

func newPrefsForgetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-password <pathname>",
		Short: "Drop the cached password of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store, err := prefs.Open(stateFile)
			if err != nil {
				return err
			}

			loc := resolveLocation(args[0], cfg.DefaultDrive)
			if _, ok := store.Password(loc.Drive, loc.Path); !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No password cached for %s\n", loc.Pathname())
				return nil
			}
			if err := store.ForgetPassword(loc.Drive, loc.Path); err != nil {
				return fmt.Errorf("failed to update state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Forgot password for %s\n", loc.Pathname())
			return nil
		},
	}
}
