// Package worker реализует воркер генерации контента.
//
// Воркер:
//   - Забирает jobs из durable очереди блокирующим Pop с таймаутом
//   - Выполняет stages pipeline строго последовательно
//   - Реализует retry с exponential backoff для transient ошибок
//   - Публикует прогресс через progress.Publisher
//   - При graceful shutdown дорабатывает текущий stage и возвращает
//     незавершённый job в очередь
//
// Воркеры stateless и масштабируются горизонтально: эксклюзивность
// job'а обеспечивает атомарный Pop, всё состояние живёт в БД.
package worker
