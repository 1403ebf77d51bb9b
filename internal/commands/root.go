// Package commands implements the payloadctl command line.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the payloadctl root command with all subcommands.
func NewRootCommand(version string) *cobra.Command {
	global := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "payloadctl",
		Short: "Queue and deliver HTTP payloads",
		Long: `Queues payloads durably and delivers them one at a time, in order, to an
HTTP endpoint with retries.

Configuration is read from the file given with --config and from DELIVERY_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&global.ConfigFile, "config", "", "Path to a YAML configuration file")

	root.AddCommand(
		NewSendCommand(global),
		NewDrainCommand(global),
		NewVersionCommand(version),
	)

	return root
}
