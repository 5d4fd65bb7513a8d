package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/constants"
	inthttp "github.com/driveindex/drive-index/internal/http"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage drive-index configuration",
		Long: `Configuration management commands for drive-index.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  set   - Change a single setting
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for drive-index.

The configuration will be saved to ~/.config/drive-index/config

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(out, "\n✓ Configuration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigWizard asks for the site settings and returns a validated config.
func runConfigWizard(in io.Reader, out io.Writer) (*config.Config, error) {
	reader := asBufioReader(in)
	cfg := config.New()

	fmt.Fprintln(out, "Drive Index Configuration Setup")
	fmt.Fprintln(out, "===============================")
	fmt.Fprintln(out)

	for cfg.BaseURL == "" {
		v, err := promptDefault(reader, out, "Worker base URL (required)", "")
		if err != nil {
			return nil, err
		}
		cfg.BaseURL = strings.TrimSuffix(v, "/")
		if cfg.BaseURL == "" {
			fmt.Fprintln(out, "  Error: base URL is required")
			continue
		}
		if err := cfg.Validate(); err == config.ErrInvalidBaseURL {
			fmt.Fprintf(out, "  Error: %v\n", err)
			cfg.BaseURL = ""
		}
	}

	name, err := promptDefault(reader, out, "Site name", cfg.SiteName)
	if err != nil {
		return nil, err
	}
	cfg.SiteName = name

	names, err := promptDefault(reader, out, "Drive names (comma-separated)", strings.Join(cfg.DriveNames, ", "))
	if err != nil {
		return nil, err
	}
	if err := cfg.Set("site.drive_names", names); err != nil {
		return nil, err
	}

	drive, err := promptDefault(reader, out, "Default drive", strconv.Itoa(cfg.DefaultDrive))
	if err != nil {
		return nil, err
	}
	if err := cfg.Set("site.default_drive", drive); err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	ok, err := promptConfirm(reader, out, "Configure proxy?")
	if err != nil {
		return nil, err
	}
	if ok {
		mode, err := promptDefault(reader, out, "Proxy mode (no-proxy, system, basic, ntlm)", "system")
		if err != nil {
			return nil, err
		}
		cfg.ProxyMode = strings.ToLower(mode)
		if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
			if cfg.ProxyHost, err = promptDefault(reader, out, "Proxy host", ""); err != nil {
				return nil, err
			}
			port, err := promptDefault(reader, out, "Proxy port", strconv.Itoa(cfg.ProxyPort))
			if err != nil {
				return nil, err
			}
			if err := cfg.Set("proxy.port", port); err != nil {
				return nil, err
			}
			if cfg.ProxyUser, err = promptDefault(reader, out, "Proxy user (optional)", ""); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long:  `Display the effective configuration after environment and flag overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	return cmd
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Site:")
	fmt.Fprintf(out, "  name:           %s\n", cfg.SiteName)
	fmt.Fprintf(out, "  base_url:       %s\n", valueOrUnset(cfg.BaseURL))
	fmt.Fprintf(out, "  drive_names:    %s\n", strings.Join(cfg.DriveNames, ", "))
	fmt.Fprintf(out, "  default_drive:  %d (%s)\n", cfg.DefaultDrive, cfg.DriveName(cfg.DefaultDrive))
	fmt.Fprintf(out, "  enable_rename:  %t\n", cfg.EnableRename)
	fmt.Fprintf(out, "  enable_delete:  %t\n", cfg.EnableDelete)
	fmt.Fprintln(out, "Client:")
	fmt.Fprintf(out, "  search_debounce_ms:  %d\n", cfg.SearchDebounce.Milliseconds())
	fmt.Fprintf(out, "  reload_delay_ms:     %d\n", cfg.ReloadDelay.Milliseconds())
	fmt.Fprintf(out, "  optimistic_updates:  %t\n", cfg.OptimisticUpdates)
	fmt.Fprintf(out, "  rollback_on_failure: %t\n", cfg.RollbackOnFailure)
	fmt.Fprintf(out, "  requests_per_second: %g\n", cfg.RequestsPerSecond)
	fmt.Fprintf(out, "  burst:               %g\n", cfg.Burst)
	fmt.Fprintf(out, "  max_retries:         %d\n", cfg.MaxRetries)
	fmt.Fprintf(out, "  parallel_downloads:  %d\n", cfg.ParallelDownloads)
	fmt.Fprintln(out, "Proxy:")
	fmt.Fprintf(out, "  mode:      %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(out, "  host:      %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}
	if cfg.ProxyUser != "" {
		fmt.Fprintf(out, "  user:      %s\n", cfg.ProxyUser)
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(out, "  no_proxy:  %s\n", cfg.NoProxy)
	}
	if inthttp.NeedsProxyPassword(cfg) {
		fmt.Fprintf(out, "  password:  prompted at runtime\n")
	}
	if cfg.MaxRetries > 0 {
		fmt.Fprintf(out, "Retry delays: %s to %s\n", constants.RetryInitialDelay, constants.RetryMaxDelay)
	}
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Change a single setting",
		Long: `Change one setting in the configuration file.

Examples:
  drive-index config set site.base_url https://index.example.workers.dev
  drive-index config set client.rollback_on_failure true
  drive-index config set proxy.mode system`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			// Flags and environment are not written back.
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s\n", args[0], args[1])
			return nil
		},
	}
	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	return cmd
}
