package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunsCmd создаёт группу команд для истории runs.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}

	cmd.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsActiveCmd(clientFn, outputFn),
		newRunsSummaryCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var workflow string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				Status:   status,
				Workflow: workflow,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			out.Print(runHeaders, runRows(runs), runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (in_progress, completed, partial, failed)")
	cmd.Flags().StringVar(&workflow, "workflow", "", "Filter by workflow name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run details with step results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rec, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			printRecord(out, rec)
			return nil
		},
	}
}

func newRunsActiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List runs in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListActiveRuns()
			if err != nil {
				return err
			}

			out.Print(runHeaders, runRows(runs), runs)
			return nil
		},
	}
}

func newRunsSummaryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show run counts by status and workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sum, err := client.Summary()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"TOTAL", "COMPLETED", "PARTIAL", "FAILED", "IN_PROGRESS", "AVG_DURATION"},
				[][]string{{
					strconv.Itoa(sum.Total),
					strconv.Itoa(sum.Completed),
					strconv.Itoa(sum.Partial),
					strconv.Itoa(sum.Failed),
					strconv.Itoa(sum.InProgress),
					formatMs(sum.AvgDurationMs),
				}},
				sum,
			)
			if out.JSONMode() || len(sum.Workflows) == 0 {
				return nil
			}

			out.Line("")
			rows := make([][]string, len(sum.Workflows))
			for i, wc := range sum.Workflows {
				rows[i] = []string{wc.Workflow, strconv.Itoa(wc.Runs)}
			}
			out.Table([]string{"WORKFLOW", "RUNS"}, rows)
			return nil
		},
	}
}
