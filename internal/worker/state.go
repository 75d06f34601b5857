package worker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State — процесс-локальное состояние воркера.
//
// Отдельная структура с собственным мьютексом: к состоянию обращаются
// основной цикл, health check и Stop() из разных горутин.
type State struct {
	mu                sync.RWMutex
	running           bool
	currentJob        uuid.UUID
	hasJob            bool
	shutdownRequested bool
}

// NewState создаёт начальное состояние.
func NewState() *State {
	return &State{}
}

// SetRunning отмечает запуск/остановку основного цикла.
func (s *State) SetRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

// Running возвращает true, пока основной цикл работает.
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetCurrentJob закрепляет job за воркером на время обработки.
func (s *State) SetCurrentJob(id uuid.UUID) {
	s.mu.Lock()
	s.currentJob = id
	s.hasJob = true
	s.mu.Unlock()
}

// ClearCurrentJob снимает закрепление после завершения обработки.
func (s *State) ClearCurrentJob() {
	s.mu.Lock()
	s.currentJob = uuid.Nil
	s.hasJob = false
	s.mu.Unlock()
}

// CurrentJob возвращает закреплённый job, если он есть.
func (s *State) CurrentJob() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentJob, s.hasJob
}

// RequestShutdown взводит флаг остановки.
// Основной цикл проверяет его между jobs и на границах retry.
func (s *State) RequestShutdown() {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
}

// ShutdownRequested возвращает true после запроса остановки.
func (s *State) ShutdownRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdownRequested
}

// Health — снимок состояния воркера для health endpoint.
type Health struct {
	// WorkerID — идентификатор воркера.
	WorkerID string `json:"worker_id"`

	// Running — основной цикл работает.
	Running bool `json:"running"`

	// CurrentJob — job в обработке (пусто, если воркер простаивает).
	CurrentJob string `json:"current_job,omitempty"`

	// BrokerHealthy — последняя проверка связи с брокером очереди.
	BrokerHealthy bool `json:"broker_healthy"`

	// StoreHealthy — последняя проверка связи с БД.
	StoreHealthy bool `json:"store_healthy"`

	// Healthy — агрегат: цикл работает и обе зависимости доступны.
	Healthy bool `json:"healthy"`

	// Timestamp — время снимка.
	Timestamp time.Time `json:"timestamp"`
}
