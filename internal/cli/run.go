package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/stepflow/internal/app"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

// ErrRunFailed — run завершился со статусом failed.
var ErrRunFailed = errors.New("run failed")

// AppFunc собирает локальный движок для запуска без API.
type AppFunc func(ctx context.Context) (*app.App, error)

// NewRunCmd создаёт команду запуска workflow.
//
// По умолчанию workflow выполняется локально, в процессе CLI.
// С --remote run выполняется сервером stepflow-api.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output, appFn AppFunc) *cobra.Command {
	var workflow string
	var inputs []string
	var inputFile string
	var remote bool

	cmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run a workflow definition file or a catalog workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var file string
			if len(args) == 1 {
				file = args[0]
			}
			if (file == "") == (workflow == "") {
				return errors.New("specify either FILE or --workflow")
			}

			input, err := parseInput(inputs, inputFile)
			if err != nil {
				return err
			}

			var def *domain.WorkflowDef
			if file != "" {
				if def, err = readDefinition(file); err != nil {
					return err
				}
			}

			var rec *domain.RunRecord
			if remote {
				rec, err = runRemote(clientFn(), workflow, def, input)
			} else {
				rec, err = runLocal(cmd.Context(), appFn, workflow, def, input)
			}
			if rec == nil {
				return err
			}
			if err != nil {
				out.Error(err.Error())
			}

			printRecord(out, rec)
			if rec.Status == domain.RunStatusFailed {
				return fmt.Errorf("%w: %s", ErrRunFailed, rec.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflow, "workflow", "w", "", "Catalog workflow name")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Input values from a JSON or YAML file")
	cmd.Flags().BoolVar(&remote, "remote", false, "Run on the stepflow-api server")

	return cmd
}

// runLocal выполняет workflow в процессе CLI.
func runLocal(ctx context.Context, appFn AppFunc, workflow string, def *domain.WorkflowDef, input map[string]any) (*domain.RunRecord, error) {
	a, err := appFn(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if def == nil {
		found, err := a.Catalog.Get(workflow)
		if err != nil {
			return nil, err
		}
		def = &found
	}

	return a.Engines.Run(ctx, *def, input)
}

// runRemote выполняет workflow через API.
func runRemote(client *Client, workflow string, def *domain.WorkflowDef, input map[string]any) (*domain.RunRecord, error) {
	if def != nil {
		return nilOnError(client.RunDefinition(*def, input))
	}
	return nilOnError(client.RunWorkflow(workflow, input))
}

func nilOnError(rec *domain.RunRecord, err error) (*domain.RunRecord, error) {
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// readDefinition читает определение workflow из JSON или YAML файла.
func readDefinition(path string) (*domain.WorkflowDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return engine.ParseFile(path, data)
}

// parseInput собирает входные данные run из файла и пар KEY=VALUE.
// Пары перекрывают значения из файла.
func parseInput(pairs []string, file string) (map[string]any, error) {
	input := make(map[string]any)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		// YAML — надмножество JSON
		if err := yaml.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("parse input %s: %w", file, err)
		}
		if input == nil {
			input = make(map[string]any)
		}
	}

	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		input[key] = value
	}

	return input, nil
}
