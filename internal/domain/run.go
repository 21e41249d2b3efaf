package domain

import (
	"reflect"
	"time"
)

// StepResult — результат выполнения одного шага.
//
// Инвариант: при Status=completed заполнен Result, при Status=failed — Error.
type StepResult struct {
	// StepID — ID шага из StepDef (если задан).
	StepID string `json:"stepId,omitempty"`

	// Name — имя шага из StepDef (если задано).
	Name string `json:"name,omitempty"`

	// Type — тип шага.
	Type string `json:"type"`

	// Status — completed или failed.
	Status StepStatus `json:"status"`

	// Result — полезная нагрузка успешного шага (непрозрачный JSON).
	Result map[string]any `json:"result,omitempty"`

	// Error — сообщение об ошибке упавшего шага.
	Error string `json:"error,omitempty"`

	// Attempts — количество вызовов handler'а (с учётом retry).
	Attempts int `json:"attempts,omitempty"`

	// DurationMs — продолжительность шага в миллисекундах.
	DurationMs int64 `json:"durationMs"`

	// TimestampMs — время завершения шага (unix ms).
	TimestampMs int64 `json:"timestampMs"`
}

// Failed возвращает true, если шаг упал.
func (r StepResult) Failed() bool {
	return r.Status == StepStatusFailed
}

// RunRecord — запись об одном запуске workflow.
//
// Создаётся и изменяется только Runner'ом в рамках одного запуска.
// После сохранения в RunStore запись неизменяема.
type RunRecord struct {
	// RunID — уникальный идентификатор запуска.
	RunID string `json:"runId"`

	// WorkflowName — имя выполняемого workflow.
	WorkflowName string `json:"workflowName"`

	// Integration — интеграция, выполнившая run.
	Integration string `json:"integration,omitempty"`

	// Steps — результаты шагов в порядке выполнения.
	Steps []StepResult `json:"steps"`

	// Status — текущий статус run.
	Status RunStatus `json:"status"`

	// FailedCount — количество упавших шагов.
	FailedCount int `json:"failedCount"`

	// AbortReason — причина досрочной остановки (critical_step_failed,
	// cancelled, unknown_step_type). Пусто, если workflow дошёл до конца.
	AbortReason string `json:"abortReason,omitempty"`

	// StartedAtMs — время начала (unix ms).
	StartedAtMs int64 `json:"startedAtMs"`

	// EndedAtMs — время завершения (unix ms). 0, пока run выполняется.
	EndedAtMs int64 `json:"endedAtMs,omitempty"`

	// DurationMs — EndedAtMs - StartedAtMs.
	DurationMs int64 `json:"durationMs"`
}

// Причины досрочной остановки run.
const (
	AbortCriticalStep = "critical_step_failed"
	AbortCancelled    = "cancelled"
	AbortUnknownStep  = "unknown_step_type"
)

// NewRunRecord создаёт запись в статусе in_progress.
func NewRunRecord(runID, workflowName, integration string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		RunID:        runID,
		WorkflowName: workflowName,
		Integration:  integration,
		Steps:        make([]StepResult, 0),
		Status:       RunStatusInProgress,
		StartedAtMs:  startedAt.UnixMilli(),
	}
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *RunRecord) IsFinished() bool {
	return r.Status.IsTerminal()
}

// AppendStep добавляет результат шага. На завершённом run ничего не делает.
func (r *RunRecord) AppendStep(res StepResult) {
	if r.IsFinished() {
		return
	}
	r.Steps = append(r.Steps, res)
	if res.Failed() {
		r.FailedCount++
	}
}

// Finish вычисляет итоговый статус и фиксирует время завершения.
//
// abortReason — причина досрочной остановки, пустая строка если все шаги
// были выполнены. Повторный вызов на завершённом run ничего не меняет.
func (r *RunRecord) Finish(abortReason string, endedAt time.Time) {
	if r.IsFinished() {
		return
	}

	r.AbortReason = abortReason
	switch {
	case abortReason != "":
		r.Status = RunStatusFailed
	case len(r.Steps) > 0 && r.FailedCount == len(r.Steps):
		r.Status = RunStatusFailed
	case r.FailedCount > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusCompleted
	}

	r.EndedAtMs = endedAt.UnixMilli()
	r.DurationMs = r.EndedAtMs - r.StartedAtMs
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *RunRecord) Duration() time.Duration {
	if r.EndedAtMs == 0 {
		return 0
	}
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Clone возвращает глубокую копию записи.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Steps = make([]StepResult, len(r.Steps))
	for i, s := range r.Steps {
		s.Result = cloneMap(s.Result)
		out.Steps[i] = s
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case nil:
		return nil
	default:
		return cloneReflect(reflect.ValueOf(v)).Interface()
	}
}

// cloneReflect копирует типизированные map, slice, массивы и указатели
// (map[string]string, []map[string]any, ...). Структуры копируются по значению.
func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneReflect(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(cloneReflect(v.Elem()))
		return out
	default:
		return v
	}
}
