// stepflow CLI — запуск workflow и просмотр истории.
//
// Использование:
//
//	stepflow [--api-url URL] [--json] [--config FILE] <command> [flags]
//
// Команды:
//
//	run        Запуск workflow (локально или --remote)
//	runs       История runs
//	workflows  Каталог workflows
//	events     События runs из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/stepflow/internal/app"
	"github.com/shaiso/stepflow/internal/cli"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	v := viper.New()
	var configFile string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "stepflow",
		Short:         "stepflow CLI — sequential workflow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json, toml)")
	flags.String("api-url", "http://localhost:8080", "API server URL")
	flags.String("log-level", "warn", "Log level for local runs")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	v.BindPFlag(config.KeyAPIURL, flags.Lookup("api-url"))
	v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	var cfg *config.Config
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(v, configFile); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	}

	clientFn := func() *cli.Client { return cli.NewClient(cfg.APIURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	appFn := func(ctx context.Context) (*app.App, error) {
		// Логи локального движка идут в stderr, stdout занят результатом
		logger := telemetry.SetupStderrLogger(cfg.LogLevel, "text")
		return app.New(ctx, cfg, logger, app.Options{})
	}
	connFn := func() (*mq.Connection, error) {
		logger := telemetry.SetupStderrLogger(cfg.LogLevel, "text")
		return mq.NewConnection(cfg.RabbitMQURL, logger)
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn, appFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewWorkflowsCmd(clientFn, outputFn),
		cli.NewEventsCmd(connFn, outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
