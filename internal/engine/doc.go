// Package engine содержит разбор и проверку определений workflow.
//
// Включает:
//   - parser.go   — разбор WorkflowDef из JSON/YAML и pre-flight валидация
//   - template.go — рендеринг Go templates ({{ .Inputs.x }}) для transform
//
// Engine отвечает за понимание структуры workflow до запуска:
// run с невалидным определением не создаётся.
package engine
