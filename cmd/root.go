package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Stevedore - Multi-format Artifact Repository Server",
	Long: `Stevedore is an artifact repository server exposing protocol-compatible
HTTP APIs for ecosystem package managers over a pluggable content store.
The core surface is the Docker/OCI Registry HTTP API v2.`,
}

// Execute runs the root command with build information attached.
func Execute(version, commit, date string) {
	if version != "" {
		rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stevedore.toml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config file in standard locations
		viper.SetConfigName("stevedore")
		viper.SetConfigType("toml")

		// Current directory (highest priority)
		viper.AddConfigPath(".")

		// User config directory
		if userConfigDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(userConfigDir + "/stevedore")
		}

		// System-wide config directories
		viper.AddConfigPath("/etc/stevedore")
		viper.AddConfigPath("/usr/local/etc/stevedore")
	}

	viper.SetEnvPrefix("stevedore")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}
}
