// Package api реализует HTTP API ClipForge.
//
// REST API для постановки jobs в очередь и чтения их состояния:
//   - POST /api/v1/jobs — создать job и поставить в очередь
//   - GET  /api/v1/jobs — список jobs с фильтрацией
//   - GET  /api/v1/jobs/{id} — job со stages
//   - GET  /api/v1/jobs/{id}/status — лёгкий статус для поллинга
//     (из Redis-кэша, с fallback в БД)
//
// Выполнением jobs API не занимается — только enqueue и чтение.
package api
