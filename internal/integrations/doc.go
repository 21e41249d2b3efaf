// Package integrations регистрирует handler'ы шагов внешних интеграций.
//
// Интеграции:
//   - documents     — generate, compress, watermark, merge, convert
//   - orchestration — api_call, ai_processing, orchestration, data_collection
//
// Каждый handler вызывает сервис интеграции через VendorClient
// (POST JSON с повторами). Без BaseURL handler'ы работают в локальном
// режиме и возвращают детерминированный результат.
//
// Опция simulate_failure: true заставляет любой шаг упасть.
package integrations
