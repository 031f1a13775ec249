package main

import (
	"github.com/spf13/cobra"
)

var (
	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Print the configuration file merged with the command line, in a form -f accepts.`,
		Args:  noArgs,
		RunE:  runConfig,
	}
)

func init() {
	rootCmd.AddCommand(cmdConfig)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	_, err := cmd.OutOrStdout().Write(conf.Encode())
	return err
}
