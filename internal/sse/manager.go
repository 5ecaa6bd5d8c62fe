package sse

import (
	"encoding/json"
	"sync"
	"time"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
)

// Event types pushed to subscribers.
const (
	EventEmailUpdated   = "email_updated"
	EventBatchCompleted = "batch_completed"
)

// SSEManager fans record changes out to Server-Sent Event connections. It
// implements service.Notifier.
type SSEManager struct {
	clients    map[chan []byte]bool
	clientsMux sync.RWMutex
	logger     *logger.Logger
}

// NewSSEManager creates a new SSE manager
func NewSSEManager(logger *logger.Logger) *SSEManager {
	return &SSEManager{
		clients: make(map[chan []byte]bool),
		logger:  logger,
	}
}

// AddClient registers a new connection and returns its event channel
func (s *SSEManager) AddClient() chan []byte {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	channel := make(chan []byte, 32)
	s.clients[channel] = true

	s.logger.Debug("Added SSE client, total clients:", len(s.clients))
	return channel
}

// RemoveClient removes a client connection and closes its channel
func (s *SSEManager) RemoveClient(channel chan []byte) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	if _, exists := s.clients[channel]; exists {
		delete(s.clients, channel)
		close(channel)
		s.logger.Debug("Removed SSE client, remaining clients:", len(s.clients))
	}
}

// Broadcast sends an event to every connection. Slow clients miss events
// rather than stall the sender.
func (s *SSEManager) Broadcast(eventType string, data interface{}) {
	event := map[string]interface{}{
		"type": eventType,
		"data": data,
		"time": time.Now().Unix(),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal broadcast event:", err)
		return
	}

	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()

	for channel := range s.clients {
		select {
		case channel <- jsonData:
		default:
			s.logger.Warn("Dropping event for slow SSE client:", eventType)
		}
	}
}

func (s *SSEManager) EmailUpdated(email *model.Email) {
	s.Broadcast(EventEmailUpdated, email)
}

func (s *SSEManager) BatchCompleted(job *model.BatchJob) {
	s.Broadcast(EventBatchCompleted, job)
}

// Close shuts down the SSE manager
func (s *SSEManager) Close() {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for channel := range s.clients {
		close(channel)
		delete(s.clients, channel)
	}
}

// ClientCount returns the number of active connections
func (s *SSEManager) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}
