package main

import (
	"fmt"
	"strconv"

	"github.com/loopholelabs/wlanctl/pkg/chip"
	"github.com/loopholelabs/wlanctl/pkg/gpio"
	"github.com/spf13/cobra"
)

var (
	cmdReset = &cobra.Command{
		Use:   "reset [gpio]",
		Short: "Reset the chip",
		Long: `Hard reset the chip through the transport reset line, or through the given sysfs
gpio (default from $` + gpio.ResetEnv + `). With -s the chip is soft reset through its registers.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usagef("at most one gpio may be given")
			}
			return nil
		},
		RunE: runReset,
	}
)

var resetSoft bool

// gpioRoot is the sysfs gpio directory, empty for the default.
var gpioRoot string

func init() {
	rootCmd.AddCommand(cmdReset)
	cmdReset.Flags().BoolVarP(&resetSoft, "soft", "s", false, "Soft reset through chip registers")
}

func pulseGPIO(pin int) error {
	if log != nil {
		log.Debug().Int("gpio", pin).Msg("reset through sysfs gpio")
	}
	return gpio.NewSysfs(gpioRoot, pin).Pulse(gpio.DefaultResetTime)
}

func runReset(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if resetSoft {
		if len(args) != 0 {
			return usagef("a gpio can't be combined with -s")
		}
		return withSession(out, true, func(s *session) error {
			if !s.tr.Direct() {
				return fmt.Errorf("soft reset: %w", chip.ErrNotDirect)
			}
			err := chip.New(s.tr, log).SoftReset()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, "Soft reset done")
			return err
		})
	}

	if len(args) == 1 {
		pin, err := strconv.Atoi(args[0])
		if err != nil {
			return usagef("invalid gpio %q", args[0])
		}
		return pulseGPIO(pin)
	}

	// Only bring the transport up when it owns the reset line.
	s, err := newSession(out)
	if err != nil || s == nil {
		return err
	}
	defer s.Close()

	if s.tr.HasReset() {
		err = s.open()
		if err != nil {
			return err
		}
		return s.tr.ResetDevice()
	}

	pin, err := gpio.PinFromEnv()
	if err != nil {
		return usageError{err}
	}
	return pulseGPIO(pin)
}
