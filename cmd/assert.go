package main

import (
	"fmt"

	"github.com/loopholelabs/wlanctl/pkg/command"
	"github.com/spf13/cobra"
)

var (
	cmdAssert = &cobra.Command{
		Use:   "assert",
		Short: "Force a core to assert",
		Long:  `Crash a core on purpose. The command only succeeds when the chip stops answering.`,
		Args:  noArgs,
		RunE:  runAssert,
	}
)

var assertApp bool
var assertMAC bool
var assertUPHY bool
var assertLPHY bool

func init() {
	rootCmd.AddCommand(cmdAssert)
	cmdAssert.Flags().BoolVarP(&assertApp, "app", "a", false, "Assert the host core")
	cmdAssert.Flags().BoolVarP(&assertMAC, "mac", "m", false, "Assert the MAC core (default)")
	cmdAssert.Flags().BoolVarP(&assertUPHY, "uphy", "u", false, "Assert the upper PHY core")
	cmdAssert.Flags().BoolVarP(&assertLPHY, "lphy", "l", false, "Assert the lower PHY core")
}

func runAssert(cmd *cobra.Command, _ []string) error {
	n := 0
	for _, set := range []bool{assertApp, assertMAC, assertUPHY, assertLPHY} {
		if set {
			n++
		}
	}
	if n > 1 {
		return usagef("only one of -a, -m, -u and -l may be given")
	}

	hart := command.HartMAC
	switch {
	case assertApp:
		hart = command.HartHost
	case assertUPHY:
		hart = command.HartUPHY
	case assertLPHY:
		hart = command.HartLPHY
	}

	return withSender(cmd.OutOrStdout(), true, func(s *session) error {
		err := s.sender.ForceAssert(hart)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Forced %s to assert\n", hart)
		return err
	})
}
