package queue

import "errors"

// Ошибки очереди.
var (
	// ErrNoChannel — AMQP канал недоступен.
	ErrNoChannel = errors.New("no channel available")

	// ErrNotConnected — соединение с брокером разорвано.
	ErrNotConnected = errors.New("broker not connected")

	// ErrConsumerClosed — канал доставки закрыт брокером,
	// consumer будет пересоздан при следующем Pop.
	ErrConsumerClosed = errors.New("consumer channel closed")
)
