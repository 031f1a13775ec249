package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/command"
	"github.com/loopholelabs/wlanctl/pkg/config"
	"github.com/spf13/cobra"
)

// Version is the tool version, set at link time.
var Version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:               "wlanctl",
		Short:             "Control and diagnose the wireless chip through its driver or directly over SPI.",
		Long:              ``,
		Version:           Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

var rootDebug bool
var rootTransport string
var rootInterface string
var rootConfig string
var rootConfigFile string
var rootJSON bool
var rootMetricsFile string

// conf is the effective configuration once flags are applied.
var conf *config.Schema

var log types.RootLogger

// ran is set once a command got past argument parsing.
var ran bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootDebug, "debug", "d", false, "Debug logging (trace)")
	rootCmd.PersistentFlags().StringVarP(&rootTransport, "transport", "t", "", "Transport to use (nl80211, spi)")
	rootCmd.PersistentFlags().StringVarP(&rootInterface, "interface", "i", "", "Network interface")
	rootCmd.PersistentFlags().StringVarP(&rootConfig, "config", "c", "", "Transport configuration (use 'help' for options)")
	rootCmd.PersistentFlags().StringVarP(&rootConfigFile, "configfile", "f", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&rootJSON, "json", "j", false, "JSON output")
	rootCmd.PersistentFlags().StringVar(&rootMetricsFile, "metrics-file", "", "Write prometheus metrics to this textfile on exit")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
}

// usageError is a problem with the command line rather than with the chip.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	ran = true

	conf = new(config.Schema)
	if rootConfigFile != "" {
		c, err := config.ReadSchema(rootConfigFile)
		if err != nil {
			return usageError{err}
		}
		conf = c
	}
	conf.Override(rootTransport, rootInterface, rootConfig, rootDebug, rootMetricsFile)

	log = logging.New(logging.Zerolog, "wlanctl", cmd.ErrOrStderr())
	if conf.Debug {
		log.SetLevel(types.TraceLevel)
	} else {
		log.SetLevel(types.InfoLevel)
	}
	return nil
}

func Execute() error {
	ran = false
	err := rootCmd.Execute()
	if err != nil && !ran {
		// cobra failed before any command ran, like an unknown command
		var ue usageError
		if !errors.As(err, &ue) {
			err = usageError{err}
		}
	}
	return err
}

// exitCode maps a command result onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) {
		return 1
	}
	code := command.Code(err)
	if code <= 0 || code > 254 {
		return 2
	}
	return int(code)
}

func printError(w io.Writer, err error) {
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(w, "%s %v\n", color.YellowString("usage:"), err)
		return
	}
	fmt.Fprintf(w, "%s %v (%d)\n", color.RedString("error:"), err, command.Code(err))
}

func main() {
	err := Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}
