package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/autohub/internal/app"
	"github.com/zjrosen/autohub/internal/config"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/paths"
	"github.com/zjrosen/autohub/internal/presentation"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	logLevel  string
	cfg       config.Config
	cfgErr    error
)

var rootCmd = &cobra.Command{
	Use:   "autohub",
	Short: "Discover, run, generate and schedule automation workflows",
	Long: `autohub discovers automation scripts that carry a WORKFLOW_META header,
validates their arguments against the declared parameters and runs them
through a configure, validate and execute lifecycle.

Workflows are found under the configured roots (default: ~/.autohub/workflows).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initLogging()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .autohub/config.yaml, then ~/.config/autohub/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (also enabled by AUTOHUB_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "debug",
		"minimum level written to the log: debug, info, warn or error")
}

func initConfig() {
	viper.Reset()
	cfgErr = nil

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .autohub/config.yaml (current directory)
		// 2. ~/.config/autohub/config.yaml (user config)
		if _, err := os.Stat(paths.ProjectConfigPath); err == nil {
			viper.SetConfigFile(paths.ProjectConfigPath)
		} else if dir := paths.UserConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// No config file found anywhere - create the default user config
			if dir := paths.UserConfigDir(); dir != "" {
				defaultPath := filepath.Join(dir, "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults (no config file)
		default:
			cfgErr = fmt.Errorf("reading config: %w", err)
			return
		}
	}

	cfg, cfgErr = config.Load(viper.GetViper())
}

// initLogging enables the file logger for --debug or AUTOHUB_DEBUG.
func initLogging() error {
	if !debugFlag && os.Getenv("AUTOHUB_DEBUG") == "" {
		return nil
	}
	logPath := os.Getenv("AUTOHUB_LOG")
	if logPath == "" {
		logPath = "autohub.log"
	}
	if _, err := log.Init(logPath); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(logLevel))
	log.Info(log.CatConfig, "autohub starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

// openApp builds the application from the loaded configuration. Callers
// must Close it.
func openApp() (*app.App, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return app.New(cfg)
}

// closeApp releases a, reporting failures in the debug log only.
func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		log.ErrorErr(log.CatConfig, "Closing application", err)
	}
}

// configFilePath returns the config file in use, or the default user config.
func configFilePath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(paths.UserConfigDir(), "config.yaml")
}

// formatter returns a formatter for the command's --output flag.
func formatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	value := ""
	if f := cmd.Flags().Lookup("output"); f != nil {
		value = f.Value.String()
	}
	format, err := presentation.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return presentation.NewFormatter(cmd.OutOrStdout(), format), nil
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
}

// parseKeyValues splits repeated key=value flags.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q must be key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an Execute error to a process exit status: 0 on success,
// 1 when a workflow run failed and 2 for every other error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRunFailed):
		return 1
	default:
		return 2
	}
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
