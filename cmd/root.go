package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"transhot/internal/config"
	"transhot/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "transhot",
	Short: "transhot - translate the text inside images",
	Long: `transhot recognizes the text in images with Google Cloud Vision and
translates it with an OpenAI-compatible chat model.

Images are addressed by the SHA-256 of their bytes. Each distinct image is
recognized and translated once; later runs read the stored result.`,
	Version:           version,
	PersistentPreRunE: reloadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("transhot executed")

		fmt.Println("Welcome to transhot!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

// appConfig is set by Execute before any command runs.
var appConfig *config.Config

// Execute runs the root command with the loaded configuration.
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")
	appConfig = cfg

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// reloadConfig applies --config by loading the named YAML file over the
// environment and reconfiguring the logger.
func reloadConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	if err := os.Setenv("TRANSHOT_CONFIG", path); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	appConfig = cfg
	return nil
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file (overrides TRANSHOT_CONFIG)")
	rootCmd.PersistentFlags().Int("timeout", 300, "Processing timeout in seconds")
	rootCmd.PersistentFlags().String("store", "", "Store backend override (sqlite, redis, memory)")
}
