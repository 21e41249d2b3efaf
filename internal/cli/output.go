package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output — вывод команд: данные в stdout (таблица или JSON),
// служебные сообщения в stderr, чтобы `--json | jq` оставался чистым.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput пишет в os.Stdout и os.Stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo — Output поверх произвольных writer'ов (для тестов).
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

func (o *Output) JSONMode() bool { return o.jsonMode }

// Print выводит jsonData в режиме --json, иначе таблицу.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выравнивает колонки; под заголовком — строка из дефисов.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	for _, line := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
}

// JSON печатает v с отступом в два пробела.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(fmt.Sprintf("encode json: %v", err))
	}
}

func (o *Output) Line(msg string) { fmt.Fprintln(o.w, msg) }

// Success — информационное сообщение в stderr.
func (o *Output) Success(msg string) { fmt.Fprintln(o.errW, msg) }

// Error — сообщение об ошибке в stderr с префиксом "Error: ".
func (o *Output) Error(msg string) { fmt.Fprintln(o.errW, "Error: "+msg) }
