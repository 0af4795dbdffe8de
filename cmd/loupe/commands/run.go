package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loupe-sh/loupe/internal/config"
	"github.com/loupe-sh/loupe/internal/hotkeys"
	"github.com/loupe-sh/loupe/internal/logger"
	"github.com/loupe-sh/loupe/internal/magnifier"
)

var noNative bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the magnifier",
	Long: `Start the magnifier with the persisted settings and register the
global hotkeys. The magnifier is shown immediately; toggle it with the
configured hotkey and stop with Ctrl+C.`,
	Example: `  # Start with persisted settings
  loupe run

  # Force the screen-capture backend
  loupe run --no-native

  # Start with debug logging
  loupe run --log-level debug --pretty`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&noNative, "no-native", false, "skip the native magnification backend")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}

	// Flag overrides the persisted log level without persisting it back.
	cfg := configMgr.Get()
	level := cfg.LogLevel
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		level = viper.GetString("log_level")
	}
	logger.Init(level, viper.GetBool("pretty"))

	log := logger.WithComponent("run")
	log.Info().Str("settings", configMgr.GetPath()).Msg("Starting loupe")

	engine := magnifier.New(cfg, noNative)

	listener, err := hotkeys.New(engine)
	if err != nil {
		log.Warn().Err(err).Msg("Hotkeys unavailable, continuing without them")
	} else {
		if err := listener.Register(cfg.ToggleHotkey, cfg.ZoomHotkey); err != nil {
			log.Warn().Err(err).Msg("Failed to register hotkeys")
		}
		go listener.Run()
		defer listener.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down")
		cancel()
	}()

	engine.Post(magnifier.ShowRequested)

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
