package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/framescope/framescope/internal/config"
	"github.com/framescope/framescope/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "framescope",
		Short: "framescope - live screen and window capture",
		Long: `framescope captures monitors and application windows into a live
frame pipeline and serves them over HTTP.

Features:
  • Capture a monitor or a window by title
  • Newest-frame delivery, no backlog
  • One-shot PNG snapshots
  • MJPEG stream and websocket frame push
  • Persistent configuration`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/framescope/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "platform backend (auto, sim, x11, win32)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")

	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig builds the config manager and applies flag overrides.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if viper.IsSet("backend") {
		if backend := viper.GetString("backend"); backend != "" {
			configMgr.SetBackend(backend)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	logger.Init(configMgr.Get().LogLevel, true)
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
