package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the otpgate command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otpgate",
		Short: "One-time code sign-in demo shell",
		Long: `otpgate serves the email one-time code sign-in flow, the password
variant and the account dashboard as JSON endpoints over a simulated
backend.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
