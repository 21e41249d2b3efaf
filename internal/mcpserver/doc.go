// Package mcpserver открывает stepflow как MCP сервер (stdio).
//
// Инструменты: list_workflows, run_workflow, list_runs, get_run.
package mcpserver
