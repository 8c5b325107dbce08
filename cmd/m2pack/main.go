package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flaneur2020/m2pack/m2pack/container"
	"github.com/flaneur2020/m2pack/m2pack/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "M2PACK"
	configFileName = "config"
)

// flag name -> viper key
var boundFlags = map[string]string{
	"workers":     "workers",
	"mode":        "mode",
	"concurrency": "concurrency",
	"key":         "key",
	"log-level":   "log_level",
}

type app struct {
	v      *viper.Viper
	stdout io.Writer

	configPath string
	verbose    bool
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout}

	rootCmd := &cobra.Command{
		Use:               "m2pack",
		Short:             "Pack directories into .m2h/.m2d archives and export their indexes",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.config/m2pack/config.{json,yaml,toml})")
	flags.String("key", "", "Key material for sealed archives")
	flags.String("log-level", logger.LogLevelWarn.String(), "Log level: silent, error, warn, info, debug")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Shorthand for --log-level info")
	flags.BoolVar(&a.debug, "debug", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(
		a.newPackCmd(),
		a.newExportCmd(),
		a.newLsCmd(),
		a.newUnpackCmd(),
		a.newVerifyCmd(),
	)
	return rootCmd
}

func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if a.configPath != "" {
		a.v.SetConfigFile(a.configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".config", "m2pack"))
		a.v.SetConfigName(configFileName)
	}

	if err := a.v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", a.v.ConfigFileUsed(), err)
		}
		if a.configPath != "" {
			return fmt.Errorf("config file %s not found", a.configPath)
		}
	}

	for name, key := range boundFlags {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()

	return a.setupLogging()
}

func (a *app) setupLogging() error {
	level, err := logger.ParseLogLevel(a.v.GetString("log_level"))
	if err != nil {
		return err
	}
	switch {
	case a.debug:
		level = logger.LogLevelDebug
	case a.verbose && level < logger.LogLevelInfo:
		level = logger.LogLevelInfo
	}
	logger.SetLogLevel(level)
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file %s", used)
	}
	return nil
}

func (a *app) containerOptions() []container.Option {
	if key := a.v.GetString("key"); key != "" {
		return []container.Option{container.WithKey([]byte(key))}
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
