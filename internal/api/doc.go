// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (engines, история, каталог, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — обработчики для /workflows
//   - run_handler.go      — обработчики для /runs
//   - health_handler.go   — /healthz
//
// Runs выполняются синхронно: POST возвращает итоговую запись run.
package api
