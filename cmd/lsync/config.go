package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aatrooox/localsync/internal/localsync/configstore"
	"github.com/aatrooox/localsync/internal/localsync/schema"
	"github.com/aatrooox/localsync/internal/settings"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "sync",
	Short:   "Show or change the remote sync configuration",
	Long: `The remote configuration (endpoint, API key, interval, features) is stored
in the local database. Process settings (database path, driver, log file,
dashboard port) come from lsync.yaml and LSYNC_* variables instead.`,
}

// remoteView is the remote config as shown by 'config show'.
type remoteView struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey       string `json:"api_key" yaml:"api_key" toml:"api_key"`
	SyncInterval string `json:"sync_interval" yaml:"sync_interval" toml:"sync_interval"`
	ContentSync  bool   `json:"content_sync" yaml:"content_sync" toml:"content_sync"`
	DynamicFeed  bool   `json:"dynamic_feed" yaml:"dynamic_feed" toml:"dynamic_feed"`
	Notify       bool   `json:"notifications" yaml:"notifications" toml:"notifications"`
}

type settingsView struct {
	ConfigFile     string `json:"config_file" yaml:"config_file" toml:"config_file"`
	DBPath         string `json:"db_path" yaml:"db_path" toml:"db_path"`
	Driver         string `json:"driver" yaml:"driver" toml:"driver"`
	LogFile        string `json:"log_file" yaml:"log_file" toml:"log_file"`
	DashboardPort  int    `json:"dashboard_port" yaml:"dashboard_port" toml:"dashboard_port"`
	SyncInterval   string `json:"sync_interval" yaml:"sync_interval" toml:"sync_interval"`
	StampOnFailure bool   `json:"stamp_on_failure" yaml:"stamp_on_failure" toml:"stamp_on_failure"`
}

type configView struct {
	Remote   remoteView   `json:"remote" yaml:"remote" toml:"remote"`
	Settings settingsView `json:"settings" yaml:"settings" toml:"settings"`
}

func newConfigView(cfg schema.RemoteConfig, s *settings.Settings, showKey bool) configView {
	key := cfg.APIKey
	if !showKey {
		key = maskSecret(key)
	}
	return configView{
		Remote: remoteView{
			Enabled:      cfg.Enabled,
			BaseURL:      cfg.BaseURL,
			APIKey:       key,
			SyncInterval: cfg.SyncInterval().String(),
			ContentSync:  cfg.Features.ContentSync,
			DynamicFeed:  cfg.Features.DynamicFeed,
			Notify:       cfg.Features.Notifications,
		},
		Settings: settingsView{
			ConfigFile:     s.ConfigFile,
			DBPath:         s.DBPath,
			Driver:         s.Driver,
			LogFile:        s.LogFile,
			DashboardPort:  s.DashboardPort,
			SyncInterval:   s.SyncInterval.String(),
			StampOnFailure: s.StampOnFailure,
		},
	}
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// renderConfig encodes v as yaml, toml or json.
func renderConfig(format string, v any) (string, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml", "":
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode yaml: %w", err)
		}
		return string(out), nil
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return "", fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.String(), nil
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode json: %w", err)
		}
		return string(out) + "\n", nil
	default:
		return "", fmt.Errorf("unknown format %q (want yaml, toml or json)", format)
	}
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the remote config and process settings",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		showKey, _ := cmd.Flags().GetBool("show-key")

		a := mustOpen(cmd)
		defer a.Close()

		store, _ := a.manager.Config()
		out, err := renderConfig(format, newConfigView(store.RemoteConfig(), appSettings, showKey))
		if err != nil {
			fatal("%v", err)
		}
		fmt.Print(out)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the remote config",
	Long: `Change the remote configuration. Only the flags given are changed.

Examples:
  lsync config set --enabled --base-url https://sync.example.com/api --api-key KEY
  lsync config set --interval 2m
  lsync config set --enabled=false
  lsync config set --interactive`,
	Run: func(cmd *cobra.Command, args []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")

		a := mustOpen(cmd)
		defer a.Close()

		store, _ := a.manager.Config()
		cfg := store.RemoteConfig()

		var err error
		if interactive {
			cfg, err = runConfigForm(cfg)
		} else {
			cfg, err = applyConfigFlags(cmd, cfg)
		}
		if err != nil {
			fatal("%v", err)
		}

		if err := store.SetRemoteConfig(cmd.Context(), cfg); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Remote config updated")
	},
}

// applyConfigFlags copies the flags the user set onto cfg.
func applyConfigFlags(cmd *cobra.Command, cfg schema.RemoteConfig) (schema.RemoteConfig, error) {
	flags := cmd.Flags()
	if flags.Changed("enabled") {
		cfg.Enabled, _ = flags.GetBool("enabled")
	}
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("api-key") {
		cfg.APIKey, _ = flags.GetString("api-key")
	}
	if flags.Changed("interval") {
		iv, _ := flags.GetDuration("interval")
		if iv <= 0 {
			return cfg, fmt.Errorf("--interval must be positive")
		}
		cfg.SyncIntervalMS = iv.Milliseconds()
	}
	if flags.Changed("content-sync") {
		cfg.Features.ContentSync, _ = flags.GetBool("content-sync")
	}
	if flags.Changed("dynamic-feed") {
		cfg.Features.DynamicFeed, _ = flags.GetBool("dynamic-feed")
	}
	if flags.Changed("notifications") {
		cfg.Features.Notifications, _ = flags.GetBool("notifications")
	}
	return cfg, nil
}

// runConfigForm edits cfg in an interactive terminal form.
func runConfigForm(cfg schema.RemoteConfig) (schema.RemoteConfig, error) {
	interval := cfg.SyncInterval().String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable remote sync?").
				Value(&cfg.Enabled),
			huh.NewInput().
				Title("Base URL").
				Placeholder("https://sync.example.com/api").
				Value(&cfg.BaseURL),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.APIKey),
			huh.NewInput().
				Title("Sync interval").
				Value(&interval).
				Validate(func(s string) error {
					d, err := time.ParseDuration(s)
					if err != nil || d <= 0 {
						return fmt.Errorf("enter a positive duration such as 5m")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Sync content?").Value(&cfg.Features.ContentSync),
			huh.NewConfirm().Title("Dynamic feed?").Value(&cfg.Features.DynamicFeed),
			huh.NewConfirm().Title("Notifications?").Value(&cfg.Features.Notifications),
		),
	)
	if err := form.Run(); err != nil {
		return cfg, err
	}

	d, _ := time.ParseDuration(interval)
	cfg.SyncIntervalMS = d.Milliseconds()
	if err := configstore.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func init() {
	configShowCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml, toml or json")
	configShowCmd.Flags().Bool("show-key", false, "Show the API key unmasked")

	configSetCmd.Flags().Bool("enabled", false, "Enable remote mirroring and sync")
	configSetCmd.Flags().String("base-url", "", "Remote base URL")
	configSetCmd.Flags().String("api-key", "", "Remote API key (sent as a bearer token)")
	configSetCmd.Flags().Duration("interval", 0, "Periodic sync interval")
	configSetCmd.Flags().Bool("content-sync", true, "Sync content")
	configSetCmd.Flags().Bool("dynamic-feed", false, "Enable the dynamic feed feature")
	configSetCmd.Flags().Bool("notifications", false, "Enable the notifications feature")
	configSetCmd.Flags().BoolP("interactive", "i", false, "Edit the config in a form")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
