// Package cli реализует инструмент командной строки stepflow.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - локально: run выполняет workflow в процессе CLI (движок собирает
//     internal/app по той же конфигурации, что и сервер);
//   - через HTTP API stepflow-api: каталог, история, запуск с --remote.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для stepflow API. Разбирает ответы (DataResponse,
// ListResponse, ErrorResponse) и превращает ошибки API в error.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Status: "failed"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stepflow runs list --json | jq .
//
// ## Commands
//
//   - run: запуск файла определения или workflow из каталога
//   - runs: list, show, active, summary
//   - workflows: list, show
//   - events: watch (подписка на события в RabbitMQ)
//
// Каждая группа создаётся фабричной функцией (NewRunsCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
