package main

import (
	"github.com/spf13/cobra"
)

var (
	cmdVersion = &cobra.Command{
		Use:   "version",
		Short: "Print the firmware version",
		Long:  ``,
		Args:  noArgs,
		RunE:  runVersion,
	}
	cmdHWVersion = &cobra.Command{
		Use:   "hw_version",
		Short: "Print the hardware version",
		Long:  ``,
		Args:  noArgs,
		RunE:  runHWVersion,
	}
	cmdHealth = &cobra.Command{
		Use:   "health",
		Short: "Check the firmware is alive",
		Long:  ``,
		Args:  noArgs,
		RunE:  runHealth,
	}
)

func init() {
	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(cmdHWVersion)
	rootCmd.AddCommand(cmdHealth)
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 {
		return usagef("unexpected arguments %v", args)
	}
	return nil
}

func runVersion(cmd *cobra.Command, _ []string) error {
	return withSender(cmd.OutOrStdout(), true, func(s *session) error {
		v, err := s.sender.GetVersion()
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), "FW Version", "version", v)
	})
}

func runHWVersion(cmd *cobra.Command, _ []string) error {
	return withSender(cmd.OutOrStdout(), false, func(s *session) error {
		v, err := s.sender.GetHWVersion()
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), "HW Version", "hw_version", v)
	})
}

func runHealth(cmd *cobra.Command, _ []string) error {
	return withSender(cmd.OutOrStdout(), true, func(s *session) error {
		return s.sender.HealthCheck()
	})
}
