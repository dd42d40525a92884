package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/taxdesk/taxdesk/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage taxdesk configuration",
		Long: `Configuration management commands for taxdesk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for taxdesk.

The configuration is saved to ~/.config/taxdesk/config with 0600
permissions. Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			p := stdinPrompter()
			p.out = cmd.OutOrStdout()
			cfg, err := promptConfig(p)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Try it with: taxdesk folders list")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// promptConfig asks for every persisted setting, starting from defaults.
func promptConfig(p *prompter) (*config.Config, error) {
	cfg := config.NewConfig()

	fmt.Fprintln(p.out, "taxdesk Configuration Setup")
	fmt.Fprintln(p.out, "===========================")
	fmt.Fprintln(p.out)

	var err error
	if cfg.APIBaseURL, err = p.Line("Portal API URL", cfg.APIBaseURL); err != nil {
		return nil, err
	}
	if cfg.Token, err = p.Secret("API token (leave empty to use TAXDESK_TOKEN)"); err != nil {
		return nil, err
	}
	if cfg.ClientID, err = p.Line("Default client ID (optional)", ""); err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Upload Settings (press Enter for defaults)")
	fmt.Fprintln(p.out, "------------------------------------------")
	if cfg.UploadWorkers, err = p.Int("Parallel uploads", cfg.UploadWorkers); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = p.Int("Attempts per file", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.MaxFileSizeMB, err = p.Int("Max file size (MB)", cfg.MaxFileSizeMB); err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out)
	useProxy, err := p.Confirm("Configure proxy?", false)
	if err != nil {
		return nil, err
	}
	if useProxy {
		fmt.Fprintln(p.out, "Proxy modes: no-proxy, system, basic, ntlm")
		if cfg.ProxyMode, err = p.Line("Proxy mode", config.ProxyModeSystem); err != nil {
			return nil, err
		}
		if cfg.ProxyMode != config.ProxyModeNone {
			if cfg.ProxyHost, err = p.Line("Proxy host", ""); err != nil {
				return nil, err
			}
			if cfg.ProxyPort, err = p.Int("Proxy port", 8080); err != nil {
				return nil, err
			}
		}
		if cfg.ProxyMode == config.ProxyModeBasic || cfg.ProxyMode == config.ProxyModeNTLM {
			if cfg.ProxyUser, err = p.Line("Proxy user (password is asked at run time)", ""); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/taxdesk/config)
  2. Environment variables (TAXDESK_API_URL, TAXDESK_TOKEN, TAXDESK_CLIENT_ID)
  3. Command-line flags (--api-url, --token, --client-id)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			cfg.MergeWithFlags(tokenFlag, apiBaseURL, clientFlag, "", "", 0)

			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Portal:")
	fmt.Fprintf(w, "  API URL:   %s\n", cfg.APIBaseURL)
	if cfg.Token != "" {
		fmt.Fprintf(w, "  Token:     %s\n", cfg.MaskedToken())
	} else {
		fmt.Fprintln(w, "  Token:     <not set>")
	}
	if cfg.ClientID != "" {
		fmt.Fprintf(w, "  Client ID: %s\n", cfg.ClientID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Upload Settings:")
	fmt.Fprintf(w, "  Parallel uploads:  %d\n", cfg.UploadWorkers)
	fmt.Fprintf(w, "  Attempts per file: %d\n", cfg.MaxRetries)
	fmt.Fprintf(w, "  Max file size:     %d MB\n", cfg.MaxFileSizeMB)
	fmt.Fprintf(w, "  Preview directory: %s\n", cfg.ResolvedPreviewDir())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	if cfg.ProxyUser != "" {
		fmt.Fprintf(w, "  Proxy User: %s\n", cfg.ProxyUser)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "  %s\n", path)
			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(w, "Status:   ✓ File exists\nModified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(w, "Status: File does not exist")
				fmt.Fprintln(w, "Create a configuration file with: taxdesk config init")
			}
			return nil
		},
	}
}
