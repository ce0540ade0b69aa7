package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/airminal/internal/api"
)

func newAutomationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automation",
		Short: "Scheduled posting commands",
	}

	cmd.AddCommand(newAutomationListCmd())
	cmd.AddCommand(newAutomationTriggerCmd())
	cmd.AddCommand(newAutomationRunsCmd())
	return cmd
}

func newAutomationListCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List automations and their schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			autos, err := api.NewClient(addr, nil).Automations(cmdContext(cmd))
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(autos))
			for id := range autos {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENABLED\tEVERY\tLAST RUN\tNEXT RUN\tSTATE")
			for _, id := range ids {
				a := autos[id]
				state := "idle"
				switch {
				case a.Running:
					state = "running"
				case a.Scheduled:
					state = "scheduled"
				}
				fmt.Fprintf(w, "%s\t%v\t%gh\t%s\t%s\t%s\n",
					id, a.Enabled, a.IntervalHours, formatMillis(a.LastRun), formatMillis(a.NextRun), state)
			}
			w.Flush()
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func newAutomationTriggerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "trigger <id>",
		Short: "Run an automation now",
		Long:  "Asks the agent for content and posts it through the automation's poster. Waits for the run to finish.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := api.NewClient(addr, nil).Trigger(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("automation %s failed: %s", args[0], res.Error)
			}
			msg := res.Message
			if msg == "" {
				msg = "done"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], msg)
			return nil
		},
	}

	apiFlag(cmd, &addr)
	return cmd
}

func newAutomationRunsCmd() *cobra.Command {
	var (
		addr  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs <id>",
		Short: "Show recent runs of an automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := api.NewClient(addr, nil).Runs(cmdContext(cmd), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRIGGER\tSTARTED\tRESULT\tDETAIL")
			for _, r := range runs {
				result, detail := "ok", r.Message
				if !r.Success {
					result, detail = "failed", r.Error
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.Trigger, formatMillis(r.StartedAt), result, truncate(detail, 60))
			}
			w.Flush()
			return nil
		},
	}

	apiFlag(cmd, &addr)
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
