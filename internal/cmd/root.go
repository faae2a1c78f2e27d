package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ethpandaops/tcshape/internal/config"
)

var (
	cfgFile string            //nolint:gochecknoglobals
	rootCmd = &cobra.Command{ //nolint:gochecknoglobals
		Use:   "tcshape",
		Short: "Linux traffic control shaper",
		Long: `tcshape applies bandwidth limits, latency, packet loss and corruption to the
outgoing or incoming traffic of a network interface using tc, ifb and iptables.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

func init() { //nolint:gochecknoinits
	cobra.OnInitialize(initConfig, setupLogging)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is tcshape.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("netns", "", "path of the network namespace to operate in")

	mustBind(config.KeyLogLevel, flags.Lookup("log-level"))
	mustBind(config.KeyNetns, flags.Lookup("netns"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(newSetCommand(), newDelCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in current directory with name "tcshape" (without extension).
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("tcshape")
	}

	viper.SetEnvPrefix("TCSHAPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("config", viper.ConfigFileUsed()).Debug("Using config file")
	} else if cfgFile != "" {
		// Config file was explicitly specified but couldn't be read
		logrus.WithError(err).WithField("config", cfgFile).Warn("Unable to read config file")
	} else {
		// No config file found, that's okay - flags and defaults apply
		logrus.Debug("No config file found, using defaults")
	}
}

// setupLogging configures logrus based on the log level setting
func setupLogging() {
	logLevel := viper.GetString(config.KeyLogLevel)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).WithField("level", logLevel).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logrus.WithFields(logrus.Fields{
		"level":  level.String(),
		"config": getConfigFile(),
	}).Debug("tcshape starting up")
}

// getConfigFile returns the config file being used or default
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}
	return "tcshape.yaml (default)"
}
