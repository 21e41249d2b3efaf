package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/mq"
)

// ConnFunc открывает соединение с RabbitMQ.
type ConnFunc func() (*mq.Connection, error)

// NewEventsCmd создаёт группу команд для событий runs.
func NewEventsCmd(connFn ConnFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow run events from RabbitMQ",
	}

	cmd.AddCommand(newEventsWatchCmd(connFn, outputFn))
	return cmd
}

func newEventsWatchCmd(connFn ConnFunc, outputFn func() *Output) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print run events as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			bindings, err := parseBindings(filters)
			if err != nil {
				return err
			}

			conn, err := connFn()
			if err != nil {
				return err
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, nil, mq.ConsumerConfig{
				Bindings: bindings,
				Handler:  eventPrinter(out),
			})

			out.Success("Watching run events, press Ctrl+C to stop")
			err = consumer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&filters, "filter", nil, "Event types to watch: run.started, step.finished, run.finished")

	return cmd
}

// parseBindings проверяет фильтры событий.
func parseBindings(filters []string) ([]mq.RoutingKey, error) {
	keys := make([]mq.RoutingKey, 0, len(filters))
	for _, f := range filters {
		key := mq.RoutingKey(f)
		switch key {
		case mq.RoutingKeyRunStarted, mq.RoutingKeyStepFinished, mq.RoutingKeyRunFinished:
			keys = append(keys, key)
		default:
			return nil, fmt.Errorf("unknown event type %q", f)
		}
	}
	return keys, nil
}

// eventPrinter выводит событие одной строкой или JSON-конвертом.
func eventPrinter(out *Output) mq.Handler {
	return func(_ context.Context, d *mq.Delivery) error {
		if out.JSONMode() {
			out.JSON(d.Message)
			return nil
		}

		line, err := formatEvent(&d.Message)
		if err != nil {
			return err
		}
		out.Line(line)
		return nil
	}
}

func formatEvent(msg *mq.Message) (string, error) {
	ts := msg.Timestamp.UTC().Format("15:04:05.000")

	switch msg.Type {
	case mq.MessageTypeRunStarted:
		p, err := mq.ParsePayload[mq.RunEventPayload](msg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s run.started   %s %s", ts, p.RunID, p.WorkflowName), nil

	case mq.MessageTypeStepFinished:
		p, err := mq.ParsePayload[mq.StepEventPayload](msg)
		if err != nil {
			return "", err
		}
		line := fmt.Sprintf("%s step.finished %s #%d %s %s (%s)",
			ts, p.RunID, p.Index+1, p.Step.Type, p.Step.Status, formatMs(p.Step.DurationMs))
		if p.Step.Status == domain.StepStatusFailed {
			line += ": " + p.Step.Error
		}
		return line, nil

	case mq.MessageTypeRunFinished:
		p, err := mq.ParsePayload[mq.RunEventPayload](msg)
		if err != nil {
			return "", err
		}
		line := fmt.Sprintf("%s run.finished  %s %s %s (%d/%d failed, %s)",
			ts, p.RunID, p.WorkflowName, p.Status, p.FailedCount, p.StepCount, formatMs(p.DurationMs))
		if p.AbortReason != "" {
			line += " aborted: " + p.AbortReason
		}
		return line, nil

	default:
		return fmt.Sprintf("%s %s %s", ts, msg.Type, msg.ID), nil
	}
}
