package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ocfl-archive/ocflkit/config"
	"github.com/ocfl-archive/ocflkit/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var conf *config.Config

var rootCmd = &cobra.Command{
	Use:     "ocflkit",
	Short:   "ocflkit manages OCFL repositories",
	Long:    "ocflkit creates, updates, reads and validates versioned, content-addressed objects in an OCFL storage root",
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		var err error
		conf, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if logLevel, _ := cmd.Flags().GetString("log-level"); logLevel != "" {
			conf.LogLevel = logLevel
		}
		return nil
	},
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel))
	if err != nil {
		level = zerolog.ErrorLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
}
