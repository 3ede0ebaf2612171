// Package cli holds the todox command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.json"

// NewRootCmd builds the command tree. version is printed by --version and
// the version subcommand.
func NewRootCmd(version string) *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "todox",
		Short: "Task reminder daemon",
		Long: `todox watches a task list and fires reminders 1 day, 1 hour,
30 minutes and 15 minutes before each task is due.

Reminders are mirrored to storage so a restarted daemon knows what was
scheduled before it went down.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "todox version %s\n" .Version}}`)
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config file (json or yaml)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newStatusCmd(&cfgPath),
		newPermissionCmd(&cfgPath),
		newVersionCmd(version),
	)
	return root
}

// Execute runs the CLI; with no subcommand it runs the daemon.
func Execute(version string) {
	root := NewRootCmd(version)
	if len(os.Args) == 1 {
		root.SetArgs([]string{"run"})
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "todox version %s\n", version)
		},
	}
}
