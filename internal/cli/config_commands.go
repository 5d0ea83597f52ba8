package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgdrive/tgdrive/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tgdrive configuration",
		Long: `Configuration management commands for tgdrive.

Commands:
  show  - Display the merged configuration
  get   - Print one setting from the config file
  set   - Change one setting in the config file
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigGetCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// secretKeys are never printed, only whether they are set.
var secretKeys = map[string]bool{
	"tgdrive.token":  true,
	"proxy.password": true,
}

func displayValue(key, value string) string {
	if secretKeys[key] {
		if value == "" {
			return "<not set>"
		}
		return fmt.Sprintf("<set (%d chars)>", len(value))
	}
	if value == "" {
		return "<empty>"
	}
	return value
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/tgdrive/config)
  2. Token file written by 'tgdrive login'
  3. Environment variables (TGDRIVE_TOKEN, TGDRIVE_API_URL, HTTPS_PROXY)
  4. Command-line flags (--token, --api-url, --proxy-*)

Secrets are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := newTable(out)
			section := ""
			for _, key := range config.Keys() {
				sec, _, _ := strings.Cut(key, ".")
				if sec != section {
					if section != "" {
						fmt.Fprintln(w)
					}
					fmt.Fprintf(w, "[%s]\n", sec)
					section = sec
				}
				value, _ := cfg.Get(key)
				fmt.Fprintf(w, "  %s\t%s\n", key, displayValue(key, value))
			}
			w.Flush()

			fmt.Fprintln(out)
			if cfg.TokenSource != "" {
				fmt.Fprintf(out, "Token source: %s\n", cfg.TokenSource)
			}
			path := configPath()
			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

// newConfigGetCmd creates the 'config get' command.
func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "get <key>",
		Short:     "Print one setting from the config file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), displayValue(args[0], value))
			return nil
		},
	}
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Long: `Change one setting in the config file. Keys are section.name:

  ` + strings.Join(config.Keys(), "\n  ") + `

Examples:
  tgdrive config set tgdrive.api_url https://drive.example.com/api
  tgdrive config set uploads.dismiss_delay 5s
  tgdrive config set proxy.mode system`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			GetLogger().Debug().Str("key", args[0]).Str("path", path).Msg("Configuration updated")
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], displayValue(args[0], strings.TrimSpace(args[1])))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintln(out, "Status: file does not exist")
			}
			if tokenPath := config.DefaultTokenPath(); tokenPath != "" {
				fmt.Fprintf(out, "Token file: %s\n", tokenPath)
			}
			return nil
		},
	}
}
