// Package cmd wires the fifostream command line.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fifostream/cmd/config"
	"github.com/tphakala/fifostream/cmd/run"
	"github.com/tphakala/fifostream/internal/buildinfo"
	"github.com/tphakala/fifostream/internal/conf"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/privacy"
)

// Build metadata, set with -ldflags "-X"
var (
	Version   = "dev"
	BuildDate = ""
)

const telemetryFlushTimeout = 2 * time.Second

// app carries state shared between the root hooks and subcommands
type app struct {
	build      buildinfo.Context
	settings   conf.Settings
	configFile string
	central    *logger.CentralLogger
	telemetry  bool
}

// Execute builds the command tree and runs it under ctx
func Execute(ctx context.Context) error {
	a := &app{build: buildinfo.Context{Version: Version, BuildDate: BuildDate}}
	err := a.rootCommand().ExecuteContext(ctx)
	a.shutdown()
	return err
}

func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fifostream",
		Short:        "Interrupt-driven audio streaming over a memory-mapped FIFO",
		Version:      a.build.String(),
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &a.configFile); err != nil {
		panic(err)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.initialize()
	}

	rootCmd.AddCommand(
		run.Command(&a.settings),
		config.Command(&a.settings),
	)
	return rootCmd
}

// initialize loads settings, then installs logging and telemetry
func (a *app) initialize() error {
	settings, err := conf.Load(a.configFile)
	if err != nil {
		return err
	}
	a.settings = *settings

	if a.settings.Debug {
		a.settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if a.settings.Logging.Console != nil {
			a.settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&a.settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	a.central = central

	central.Module("main").Info("fifostream starting",
		logger.String("version", a.build.GetVersion()),
		logger.String("build_date", a.build.GetBuildDate()))

	if a.settings.Telemetry.Enabled {
		errors.SetPrivacyScrubber(privacy.ScrubMessage)
		if err := errors.InitSentry(a.settings.Telemetry.DSN, a.settings.Telemetry.Environment, a.build.GetVersion()); err != nil {
			central.Module("main").Warn("telemetry disabled", logger.Error(err))
		} else {
			a.telemetry = true
		}
	}
	return nil
}

func (a *app) shutdown() {
	if a.telemetry {
		errors.FlushTelemetry(telemetryFlushTimeout)
	}
	if a.central != nil {
		_ = a.central.Close()
	}
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
