package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

// configFile is set by the --config flag.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "ledgercore",
	Short: "Ledgercore is a permissioned registry of operational records",
	Long: `Ledgercore tracks lots, items, services, notes, processes and locations
behind a per-identity permission gate. The serve command runs the HTTP API;
snapshot writes the current state archive.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ledgercore.yaml in the working directory)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgercore v" + version)
	},
}

// loadConfig reads configuration from the optional YAML file and the
// LEDGERCORE_* environment, with flag-independent defaults.
func loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("owner", "root")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("blob.driver", "fs")

	v.SetEnvPrefix("LEDGERCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ledgercore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
