package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abe-bb/sensor-telemetry/internal/defaults"
	"github.com/abe-bb/sensor-telemetry/internal/logging"
	"github.com/abe-bb/sensor-telemetry/internal/version"
)

var (
	appVersion = "dev"
	appCommit  = "unknown"
	appDate    = "unknown"

	logLevel slog.LevelVar
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "telemetryd",
	Short:   "Sensor telemetry platform: ingestion server, control plane, and operator CLI",
	Version: version.String(appVersion, appCommit, appDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindAndInitLogging(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("authorized-users-dir", defaults.AuthorizedUsersDir, "Directory of operator RSA public-key PEM files")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sensorCmd)
	rootCmd.AddCommand(registerSensorCmd)
	rootCmd.AddCommand(deregisterSensorCmd)
}

// bindAndInitLogging binds the current command's flags into viper under the
// TELEMETRY_ env prefix and installs a devlog-backed default logger at the
// configured level. Every subcommand's PreRunE chain runs this first via
// PersistentPreRunE.
func bindAndInitLogging(cmd *cobra.Command) error {
	viper.SetEnvPrefix("telemetry")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}

	switch viper.GetString("log-level") {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
	logger = logging.SetDefault(os.Stdout, logLevel.Level())
	return nil
}
