// stepflow-api — HTTP API движка workflow.
//
// Использование:
//
//	stepflow-api [--config FILE] [--port PORT] [--archive] [--events]
//
// Конфигурация читается из флагов, переменных окружения (API_PORT,
// HISTORY_MAX_RUNS, ...) и файла конфигурации.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/stepflow/internal/api"
	"github.com/shaiso/stepflow/internal/app"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/scheduler"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "stepflow-api",
		Short:         "stepflow HTTP API server",
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
			return serve(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json, toml)")
	flags.Int("port", 8080, "HTTP port")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("archive", false, "Archive finished runs to Postgres (DB_URL)")
	flags.Bool("events", false, "Publish run events to RabbitMQ (RABBITMQ_URL)")
	flags.String("catalog-dir", "", "Directory with extra workflow definitions")

	v.BindPFlag(config.KeyAPIPort, flags.Lookup("port"))
	v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	v.BindPFlag(config.KeyArchiveEnabled, flags.Lookup("archive"))
	v.BindPFlag(config.KeyEventsEnabled, flags.Lookup("events"))
	v.BindPFlag(config.KeyCatalogDir, flags.Lookup("catalog-dir"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting stepflow-api", "version", version)

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer engine.Close()

	// Очистка истории по расписанию
	if cfg.HistoryPruneCron != "" {
		janitor, err := scheduler.New(scheduler.Config{
			Store:    engine.History,
			CronExpr: cfg.HistoryPruneCron,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go janitor.Start(ctx)
	}

	handler := api.NewHandler(api.Config{
		Engines: engine.Engines,
		History: engine.History,
		Catalog: engine.Catalog,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.APIPort)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	// Запускаем сервер в горутине
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
