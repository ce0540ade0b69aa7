package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/airminal/internal/api"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  "Shows whether the agent is enabled, whether an endpoint is set, the number of active sessions and the badge of every observed tab.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, api.NewClient(addr, nil))
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func runStatus(cmd *cobra.Command, c *api.Client) error {
	ctx := cmdContext(cmd)
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	tabs, err := c.Tabs(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Agent:     %s\n", onOff(st.Enabled))
	endpoint := "configured"
	if !st.HasEndpoint {
		endpoint = "not set"
	}
	fmt.Fprintf(out, "Endpoint:  %s\n", endpoint)
	fmt.Fprintf(out, "Sessions:  %d\n", st.ActiveSessions)

	if len(tabs.Tabs) == 0 {
		fmt.Fprintln(out, "\nNo tabs observed.")
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tBADGE\tPROCESSED\tTYPING")
	for _, t := range tabs.Tabs {
		badge := string(t.Badge.State)
		if t.Badge.Error {
			badge += " (error)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\n", t.Platform, badge, t.Processed, t.Typing)
	}
	w.Flush()
	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Conversation session commands",
	}

	var addr string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every conversation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api.NewClient(addr, nil).ClearSessions(cmdContext(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sessions cleared.")
			return nil
		},
	}
	apiFlag(clearCmd, &addr)
	cmd.AddCommand(clearCmd)
	return cmd
}

func newTestConnectionCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Send a test message to the agent endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.NewClient(addr, nil).TestConnection(cmdContext(cmd))
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("connection failed: %s", res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection OK. Reply: %s\n", res.Reply)
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

// cmdContext returns the command's context, or Background when it was run
// without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
