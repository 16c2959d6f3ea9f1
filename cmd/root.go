package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ddedalus/syringe-pump/config"
	"github.com/Ddedalus/syringe-pump/internal/logging"
)

var (
	// Version is the application version
	Version = "dev"
	// Commit is the git commit the binary was built from
	Commit = "none"
	// BuildDate is the time the binary was built
	BuildDate = "unknown"

	// cfgFile is the path to the config file
	cfgFile string

	// appConfig and logger are set up by the root command before any
	// subcommand runs.
	appConfig *config.Config
	logger    = log.New(io.Discard)
	logCloser io.Closer

	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pumplink",
		Short: "PumpLink - host-side driver for Legato syringe pumps",
		Long: `PumpLink drives a Legato-class syringe pump over its USB serial port.
It sends prompt-terminated commands, classifies the pump's status prompt
and exposes the common pump operations as subcommands.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	cfgFile = ""
	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pumplink/config.yaml)")
	flags.Bool("verbose", false, "verbose output")
	flags.StringP("port", "p", "", "serial port device (e.g., /dev/ttyACM0 or COM3)")
	flags.Int("address", -1, "pump network address 0-99 (-1 sends commands without one)")
	flags.Bool("simulate", false, "talk to an in-process pump simulator instead of a serial port")

	for key, name := range map[string]string{
		"verbose":      "verbose",
		"serial.port":  "port",
		"pump.address": "address",
		"simulate":     "simulate",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("Failed to bind %s flag: %v", name, err))
		}
	}

	// Register subcommands
	RegisterVersionCommand(root)
	RegisterScanCommand(root)
	RegisterSendCommand(root)
	RegisterInfoCommand(root)
	RegisterStatusCommand(root)
	RegisterRunCommand(root)
	RegisterStopCommand(root)
	RegisterReplCommand(root)
	RegisterConfigCommand(root)

	return root
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext executes the root command with a context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup reads the config file and environment and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.InitViper(cfgFile); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}

	l, closer, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	appConfig, logger, logCloser = cfg, l, closer
	logger.Debug("configuration loaded", "file", viper.ConfigFileUsed(), "command", cmd.CommandPath())
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}

func printf(cmd *cobra.Command, format string, a ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
