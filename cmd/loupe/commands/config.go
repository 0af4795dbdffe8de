package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loupe-sh/loupe/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage loupe settings",
	Long:  `View and manage the persisted magnifier settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Example: `  # Show settings as YAML (default)
  loupe config show

  # Show settings as JSON
  loupe config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a settings value",
	Example: `  # Set the magnifier window size
  loupe config set width 500
  loupe config set height 500

  # Switch to a rectangular window
  loupe config set circular false

  # Bind the visibility hotkey
  loupe config set toggle_hotkey Mod4-x`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a settings value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := configMgr.Get()
	if err := setSetting(cfg, key, value); err != nil {
		return err
	}
	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	fmt.Printf("Settings updated: %s = %s\n", key, value)
	return nil
}

func setSetting(cfg *config.Settings, key, value string) error {
	switch key {
	case "width", "height", "refresh_rate", "x_offset", "y_offset":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		switch key {
		case "width":
			cfg.Width = n
		case "height":
			cfg.Height = n
		case "refresh_rate":
			cfg.RefreshRate = n
		case "x_offset":
			cfg.XOffset = n
		case "y_offset":
			cfg.YOffset = n
		}
	case "circular":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		cfg.Circular = b
	case "zoom_low", "zoom_high":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		if key == "zoom_low" {
			cfg.ZoomLow = f
		} else {
			cfg.ZoomHigh = f
		}
	case "toggle_hotkey":
		cfg.ToggleHotkey = value
	case "zoom_hotkey":
		cfg.ZoomHotkey = value
	case "log_level":
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[value] {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown settings key: %s", key)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := configMgr.Get()
	value, err := getSetting(cfg, key)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func getSetting(cfg *config.Settings, key string) (string, error) {
	switch key {
	case "width":
		return strconv.Itoa(cfg.Width), nil
	case "height":
		return strconv.Itoa(cfg.Height), nil
	case "circular":
		return strconv.FormatBool(cfg.Circular), nil
	case "refresh_rate":
		return strconv.Itoa(cfg.RefreshRate), nil
	case "x_offset":
		return strconv.Itoa(cfg.XOffset), nil
	case "y_offset":
		return strconv.Itoa(cfg.YOffset), nil
	case "zoom_low":
		return strconv.FormatFloat(cfg.ZoomLow, 'g', -1, 64), nil
	case "zoom_high":
		return strconv.FormatFloat(cfg.ZoomHigh, 'g', -1, 64), nil
	case "toggle_hotkey":
		return cfg.ToggleHotkey, nil
	case "zoom_hotkey":
		return cfg.ZoomHotkey, nil
	case "log_level":
		return cfg.LogLevel, nil
	}
	return "", fmt.Errorf("unknown settings key: %s", key)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	fmt.Println(configMgr.GetPath())
	return nil
}
