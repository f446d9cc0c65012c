// Package cmd implements the shipway CLI. Commands delegate to the
// internal packages; no pipeline logic lives here.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shipway/shipway/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shipway",
	Short: "Shipway - release publisher for container images",
	Long: `Shipway derives release tags and OCI labels from CI trigger metadata,
drives an external image build, extracts the pushed content digest from
the build metadata artifact, and keyless-signs each release tag bound
to that digest.`,
}

// Execute runs the CLI, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./shipway.yaml)")

	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newDeriveCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	logger.GetLogger().ConfigureFromEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if env := os.Getenv("SHIPWAY_CONFIG"); env != "" {
		viper.SetConfigFile(env)
	} else {
		viper.SetConfigName("shipway")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(homeDir + "/.shipway")
		}
	}

	viper.SetEnvPrefix("SHIPWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debug("Using config file", "path", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}
	// Missing default config is fine: defaults plus env cover CI runs.
}
