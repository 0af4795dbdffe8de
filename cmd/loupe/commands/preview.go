package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loupe-sh/loupe/internal/config"
	"github.com/loupe-sh/loupe/internal/logger"
	"github.com/loupe-sh/loupe/internal/overlay"
)

var previewDuration time.Duration

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the offset preview overlay",
	Long: `Show a full-screen click-through overlay outlining where the
magnifier window will appear, with a center crosshair and the configured
offset. Useful for positioning the magnifier before running it.`,
	Example: `  # Preview until interrupted
  loupe preview

  # Preview for five seconds
  loupe preview --duration 5s`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().DurationVar(&previewDuration, "duration", 0, "close the preview after this long (0 waits for Ctrl+C)")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))

	preview, err := overlay.New(cfg.Width, cfg.Height, cfg.XOffset, cfg.YOffset, cfg.Circular)
	if err != nil {
		return fmt.Errorf("failed to create preview overlay: %w", err)
	}
	defer preview.Close()

	if err := preview.Show(); err != nil {
		return fmt.Errorf("failed to show preview overlay: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if previewDuration > 0 {
		select {
		case <-time.After(previewDuration):
		case <-sigChan:
		}
		return nil
	}
	<-sigChan
	return nil
}
