// Package app собирает движок stepflow из конфигурации.
//
// Используется всеми бинарями: stepflow-api, stepflow-mcp и
// локальным запуском в CLI.
package app
