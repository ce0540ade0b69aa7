package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zulandar/airminal/internal/api"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: "Airminal: agent replies for messaging web apps",
		Long:  "Airminal watches messaging web apps in Chrome, forwards new messages to an agent endpoint and types its replies back.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newTestConnectionCmd())
	cmd.AddCommand(newAutomationCmd())
	cmd.AddCommand(newDBCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "am %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// apiFlag registers --api on a client command.
func apiFlag(cmd *cobra.Command, addr *string) {
	cmd.Flags().StringVar(addr, "api", api.DefaultAddr, "address of the running daemon")
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
