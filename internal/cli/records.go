package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
)

var (
	runHeaders  = []string{"RUN_ID", "WORKFLOW", "INTEGRATION", "STATUS", "STEPS", "FAILED", "DURATION", "STARTED"}
	stepHeaders = []string{"#", "STEP", "TYPE", "STATUS", "ATTEMPTS", "DURATION", "ERROR"}
)

// runRow — строка таблицы runs.
func runRow(r domain.RunRecord) []string {
	return []string{
		r.RunID,
		r.WorkflowName,
		r.Integration,
		r.Status.String(),
		strconv.Itoa(len(r.Steps)),
		strconv.Itoa(r.FailedCount),
		formatMs(r.DurationMs),
		formatTimestamp(r.StartedAtMs),
	}
}

func runRows(runs []domain.RunRecord) [][]string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}
	return rows
}

// stepRows — строки таблицы шагов run.
func stepRows(steps []domain.StepResult) [][]string {
	rows := make([][]string, len(steps))
	for i, s := range steps {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			stepLabel(s),
			s.Type,
			string(s.Status),
			strconv.Itoa(s.Attempts),
			formatMs(s.DurationMs),
			s.Error,
		}
	}
	return rows
}

// printRecord выводит run целиком: шаги таблицей и итоговую строку.
func printRecord(out *Output, rec *domain.RunRecord) {
	if out.JSONMode() {
		out.JSON(rec)
		return
	}

	out.Table(stepHeaders, stepRows(rec.Steps))
	out.Line("")
	out.Line(summaryLine(rec))
}

func summaryLine(rec *domain.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s (%d steps, %d failed, %s)",
		rec.RunID, rec.Status, len(rec.Steps), rec.FailedCount, formatMs(rec.DurationMs))
	if rec.AbortReason != "" {
		fmt.Fprintf(&b, ", aborted: %s", rec.AbortReason)
	}
	return b.String()
}

func stepLabel(s domain.StepResult) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.StepID != "":
		return s.StepID
	default:
		return s.Type
	}
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
