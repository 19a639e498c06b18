//go:build !darwin

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errLaunchAgentDarwin = errors.New("LaunchAgent installation is only available on macOS; run `keyguard daemon` under your service manager instead")

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the keyguard daemon as a LaunchAgent (macOS only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return errLaunchAgentDarwin
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the keyguard LaunchAgent (macOS only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return errLaunchAgentDarwin
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}
