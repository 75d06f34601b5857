// Package progress — публикация прогресса jobs через Redis.
//
// Два канала pub/sub:
//   - clipforge.jobs.status — смены статуса job (PENDING/PROCESSING/...)
//   - clipforge.jobs.progress — гранулярный прогресс stages
//
// Доставка fire-and-forget, at-most-once: отключившийся слушатель
// просто пропускает события и восстанавливается polling'ом
// персистентных Job/Stage записей. Помимо pub/sub каждый publish
// обновляет TTL-кэш последнего статуса, чтобы поллеры не ходили в БД.
//
// Публикация — convenience, не корректность: сбой Redis логируется
// и проглатывается, job при этом продолжает выполняться.
package progress
