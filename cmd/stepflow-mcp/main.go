// stepflow-mcp — MCP сервер движка workflow (stdio).
//
// Даёт MCP клиентам инструменты list_workflows, run_workflow,
// list_runs и get_run. Логи пишутся в stderr: stdout занят протоколом.
//
// Использование:
//
//	stepflow-mcp [--config FILE]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/stepflow/internal/app"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/mcpserver"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "stepflow-mcp",
		Short:         "stepflow MCP server over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, configFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger := telemetry.SetupStderrLogger(cfg.LogLevel, cfg.LogFormat)
			logger.Info("starting stepflow-mcp", "version", version)

			// Метрики не собираются: у stdio процесса нет /metrics
			engine, err := app.New(context.Background(), cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer engine.Close()

			srv := mcpserver.New(mcpserver.Config{
				Engines: engine.Engines,
				History: engine.History,
				Catalog: engine.Catalog,
				Logger:  logger,
			})
			return srv.ServeStdio()
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json, toml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("events", false, "Publish run events to RabbitMQ (RABBITMQ_URL)")

	v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	v.BindPFlag(config.KeyEventsEnabled, flags.Lookup("events"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
