// Package config загружает конфигурацию процессов stepflow.
//
// Источники по убыванию приоритета: флаги cobra (привязанные к viper),
// переменные окружения (LOG_LEVEL, DB_URL, HISTORY_MAX_RUNS, ...),
// файл конфигурации (--config), значения по умолчанию.
package config
