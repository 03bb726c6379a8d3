// Package cmd provides the command-line interface for searchd with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. SEARCHD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (SEARCHD_SERVER_PORT, etc.)
//	4. Configuration files (.searchd.yml) - lowest priority
//
// Environment Variables:
//
//	SEARCHD_CONFIG_FILE: Path to custom configuration file
//	SEARCHD_SERVER_PORT: Override listener port
//	SEARCHD_CORPUS_PATH: Override corpus file path
//	SEARCHD_CORPUS_REREAD_ON_QUERY: Toggle reload mode
//	And so on following the SEARCHD_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "searchd",
	Short: "A concurrent exact-line search server for large text corpora",
	Long: `searchd serves exact full-line membership queries against a reference
text corpus over TCP, optionally wrapped in TLS and gated by a pre-shared key.

Clients send one newline-terminated candidate string per request and receive
STRING EXISTS, STRING NOT FOUND, or ERROR: <reason>.

Modes:
  cached  (default)        load the corpus once into an immutable snapshot
  reload  (reread_on_query) re-read the corpus on every query, so file edits
                           are visible on the very next request

Quick Start:
  searchd config init              Write a starter .searchd.yml
  searchd serve --corpus data.txt  Start the server
  searchd query "some line"        Query a running server`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscore spellings (--reread_on_query) alongside the
	// canonical dashed flag names.
	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlagName)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .searchd.yml, can also use SEARCHD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("monitoring.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("monitoring.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig initializes the configuration system with support for multiple
// config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. SEARCHD_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .searchd.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SEARCHD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".searchd")
	}

	// Enable automatic environment variable binding with SEARCHD_ prefix
	// Examples: SEARCHD_SERVER_PORT, SEARCHD_CORPUS_PATH, SEARCHD_TLS_ENABLED
	viper.SetEnvPrefix("SEARCHD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; flags and env vars carry the rest.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
