// Package steps содержит реестр handler'ов шагов и встроенные типы шагов.
//
// # Обзор
//
// Handler — исполнитель одного типа шага. Каждый handler:
//   - Получает общие входные данные run и опции шага
//   - Выполняет действие (HTTP запрос, задержка, трансформация, вызов вендора)
//   - Возвращает непрозрачный результат или ошибку
//
// # Интерфейс Handler
//
//	type Handler interface {
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Обычную функцию можно зарегистрировать через HandlerFunc.
//
// # Registry
//
// Registry связывает тип шага ("generate", "api_call", ...) с handler'ом:
//
//	registry := steps.DefaultRegistry(logger)  // http, delay, transform
//	registry.Register("generate", steps.HandlerFunc(generate))
//
//	h, err := registry.Resolve("generate")
//	if errors.Is(err, steps.ErrUnknownStepType) {
//	    // неизвестный тип
//	}
//
// Повторная регистрация перезаписывает handler и пишет WARN в лог.
//
// # Встроенные типы шагов
//
// ## HTTP (http.go)
//
// Выполняет HTTP запрос. Без body для не-GET запросов отправляет входные данные run.
//
//	{"method": "POST", "url": "https://api.example.com/data", "fail_on_status": true}
//
// Outputs: {"status_code": 200, "headers": {...}, "body": {...}}
//
// ## Delay (delay.go)
//
//	{"duration_sec": 5}   // или
//	{"duration_ms": 500}
//
// Outputs: {"duration_ms": 5000}
//
// ## Transform (transform.go)
//
// Рендерит mappings через Go templates (engine.Render) с доступом к
// .Inputs и .Options. Без mappings возвращает копию входных данных.
//
// # Обработка ошибок
//
//	var (
//	    ErrUnknownStepType // тип не зарегистрирован
//	    ErrInvalidConfig   // неверные опции
//	    ErrStepCancelled   // context cancelled
//	    ErrStepTimeout     // таймаут попытки
//	)
//
// Retry и таймауты применяет worker.Executor, handler'ы просто возвращают ошибки.
package steps
