// Package queue — durable FIFO очередь jobs поверх RabbitMQ.
//
// Очередь — единственный механизм распределения работы между воркерами:
// атомарный эксклюзивный pop гарантирует, что один job достаётся ровно
// одному воркеру, без дополнительных блокировок или leases.
//
// Компоненты:
//   - Connection — AMQP соединение с автоматическим reconnect
//   - JobQueue — Push/Pop поверх durable очереди с DLQ
//   - SetupTopology — декларация exchange/queue/bindings
//
// Pop блокируется на ограниченный таймаут (≈1s): таймаут без job —
// не ошибка, а момент, когда воркер проверяет shutdown-флаг и health.
package queue
