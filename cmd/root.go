// -- cmd/root.go --
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/translators-dev/bridge-cli/internal/config"
	"github.com/translators-dev/bridge-cli/internal/observability"
)

var (
	cfgFile string

	// appConfig is populated by the persistent pre-run hook and read by
	// subcommands.
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bridge-cli",
	Short: "bridge-cli drives the file-based translator bridge session.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// This function runs before any command, setting up config and logging.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger so the failure is still reported
			// through the normal channel.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "bridge-cli"})
			return err
		}
		applyFlagOverrides(cmd, cfg)
		appConfig = cfg

		observability.InitializeLogger(cfg.Logger())
		observability.GetLogger().Info("Starting bridge-cli", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Use the logger if available, otherwise fallback to stderr
		if logger := observability.GetLogger(); logger != nil && logger != zap.NewNop() {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("bridge-dir", "", "bridge exchange directory (default is ~/.translators)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// applyFlagOverrides lets explicit CLI flags win over file and env
// configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("bridge-dir"); f != nil && f.Changed {
		cfg.SetBridgeDir(f.Value.String())
	}
	if f := cmd.Flags().Lookup("watch"); f != nil && f.Changed {
		cfg.SetBridgeWatch(f.Value.String() == "true")
	}
	if f := cmd.Flags().Lookup("project"); f != nil && f.Changed {
		cfg.SetBridgeProject(f.Value.String())
	}
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("TRANSLATORS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}
