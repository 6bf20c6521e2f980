package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "Hub - central coordination service for distributed node agents",
	Long: `Hub is the central coordination service of a distributed node fleet.

It accepts node registrations over persistent websocket connections, tracks
liveness through heartbeats, coordinates multi-task missions across capable
nodes, and hosts the shared memory blackboard nodes use to exchange results.
All durable state lives in Redis; the hub itself can be restarted freely.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
