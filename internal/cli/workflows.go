package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/domain"
)

// NewWorkflowsCmd создаёт группу команд для каталога workflows.
func NewWorkflowsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Browse the workflow catalog",
	}

	cmd.AddCommand(
		newWorkflowsListCmd(clientFn, outputFn),
		newWorkflowsShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "INTEGRATION", "CRITICAL", "STEPS", "DESCRIPTION"}
			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = []string{
					w.Name,
					w.Integration,
					strconv.FormatBool(w.CriticalByDefault),
					strings.Join(w.StepTypes, ","),
					w.Description,
				}
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}
}

func newWorkflowsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show workflow steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			headers := []string{"#", "ID", "NAME", "TYPE", "CRITICAL", "RETRY"}
			rows := make([][]string, len(def.Steps))
			for i, s := range def.Steps {
				rows[i] = []string{
					strconv.Itoa(i + 1),
					s.ID,
					s.Name,
					s.Type,
					strconv.FormatBool(def.IsCritical(s)),
					retryLabel(s.Retry),
				}
			}

			out.Print(headers, rows, def)
			return nil
		},
	}
}

func retryLabel(p *domain.RetryPolicy) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(p.MaxAttempts) + "x/" + p.InitialDelay().String()
}
