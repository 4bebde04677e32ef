// Package cmd provides the livecode command-line interface.
//
// Configuration is read, in order of precedence, from command-line flags,
// LIVECODE_ environment variables (LIVECODE_SERVER_PORT and so on), the
// file named by --config or LIVECODE_CONFIG_FILE, and .livecode.yml in the
// working directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livecode/internal/config"
	"github.com/conneroisu/livecode/internal/errors"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livecode",
	Short: "Serve lessons with live code editors",
	Long: `livecode serves lesson pages that embed live code editors. Each editor
shows a snippet of markup, style or script; readers edit it and run it in an
isolated preview frame next to the editor.

Lessons are directories under the lessons root holding an index.html page
and an optional lesson.yml snippet table.

Quick Start:
  livecode serve                  Serve ./lessons on localhost:8080
  livecode list                   List lessons and their editors
  livecode check                  Run every snippet once and report failures`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .livecode.yml, can also use LIVECODE_CONFIG_FILE env var)")
	flags.String("lessons", "./lessons", "lessons directory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	mustBind(flags, map[string]string{
		"lessons.dir": "lessons",
		"log.level":   "log-level",
		"log.format":  "log-format",
	})
}

// initConfig points viper at the config file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("LIVECODE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livecode")
	}

	viper.SetEnvPrefix("LIVECODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing or unreadable file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load configuration")
	}
	return cfg, nil
}
