// Package commands implements the smbcored CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version information, injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "smbcored",
	Short: "smbcored - SMB session and shared-state engine",
	Long: `smbcored runs the protocol-agnostic session and shared-state engine
for an SMB/CIFS file server: the FileStateCache, the lock/oplock manager,
share arbitration, the passthru authenticator, and the network server
runtime that binds them together.

Use "smbcored [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/smbcored/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
