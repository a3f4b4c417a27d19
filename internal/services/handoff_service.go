package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"modelmux/internal/models"

	"github.com/google/uuid"
)

// handoffHistoryCap bounds the retained handoff ring; oldest entries drop first
const handoffHistoryCap = 1000

// HandoffListener receives every recorded handoff. Delivery is synchronous,
// in-process, best-effort.
type HandoffListener func(models.AgentHandoff)

// HandoffService records explicit transfers of serving responsibility
// between agents/models and broadcasts them to registered listeners.
type HandoffService struct {
	sessions *SessionService // may be nil: handoffs are then recorded without context injection

	mu            sync.Mutex
	history       []models.AgentHandoff
	totalHandoffs int
	seamless      int
	byToAgent     map[string]int

	listenerMu sync.RWMutex
	listeners  map[int]HandoffListener
	nextID     int
}

// NewHandoffService creates the handoff recorder
func NewHandoffService(sessions *SessionService) *HandoffService {
	return &HandoffService{
		sessions:  sessions,
		byToAgent: make(map[string]int),
		listeners: make(map[int]HandoffListener),
	}
}

// Handoff records a transfer of responsibility. With preserveContext set, a
// session summary is built and injected as a handoff note for the receiving
// agent so the next turn has continuity without the caller re-supplying
// history.
func (s *HandoffService) Handoff(fromAgent, fromModel, toAgent, toModel, reason string, preserveContext bool, sessionID string) (*models.AgentHandoff, error) {
	if toAgent == "" && toModel == "" {
		return nil, fmt.Errorf("handoff requires a receiving agent or model")
	}

	var summary string
	if preserveContext && sessionID != "" && s.sessions != nil {
		summary = s.sessions.AppendHandoffNote(sessionID, toAgent, toModel)
	}

	handoff := models.AgentHandoff{
		ID:             uuid.New().String(),
		FromAgent:      fromAgent,
		FromModel:      fromModel,
		ToAgent:        toAgent,
		ToModel:        toModel,
		Reason:         reason,
		ContextSummary: summary,
		SessionID:      sessionID,
		Seamless:       summary != "",
		Timestamp:      time.Now(),
	}

	s.mu.Lock()
	s.history = append(s.history, handoff)
	if len(s.history) > handoffHistoryCap {
		s.history = s.history[len(s.history)-handoffHistoryCap:]
	}
	s.totalHandoffs++
	if handoff.Seamless {
		s.seamless++
	}
	if toAgent != "" {
		s.byToAgent[toAgent]++
	}
	s.mu.Unlock()

	s.broadcast(handoff)

	if m := GetMetrics(); m != nil {
		m.RecordHandoff(toAgent)
	}

	log.Printf("🔀 [HANDOFF] %s/%s -> %s/%s (%s)", fromAgent, fromModel, toAgent, toModel, reason)
	return &handoff, nil
}

// GetHistory returns up to limit most recent handoffs, newest first
func (s *HandoffService) GetHistory(limit int) []models.AgentHandoff {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}

	result := make([]models.AgentHandoff, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.history[i])
	}
	return result
}

// GetStats summarizes all handoffs recorded since process start
func (s *HandoffService) GetStats() models.HandoffStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.HandoffStats{
		TotalHandoffs:    s.totalHandoffs,
		SeamlessHandoffs: s.seamless,
		ByToAgent:        make(map[string]int, len(s.byToAgent)),
	}
	for agent, count := range s.byToAgent {
		stats.ByToAgent[agent] = count
	}
	if len(s.history) > 0 {
		last := s.history[len(s.history)-1].Timestamp
		stats.LastHandoffAt = &last
	}
	return stats
}

// Subscribe registers a listener and returns its id for Unsubscribe
func (s *HandoffService) Subscribe(listener HandoffListener) int {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	s.nextID++
	s.listeners[s.nextID] = listener
	return s.nextID
}

// Unsubscribe removes a previously registered listener
func (s *HandoffService) Unsubscribe(id int) {
	s.listenerMu.Lock()
	delete(s.listeners, id)
	s.listenerMu.Unlock()
}

// Shutdown releases all registered listeners
func (s *HandoffService) Shutdown() {
	s.listenerMu.Lock()
	s.listeners = make(map[int]HandoffListener)
	s.listenerMu.Unlock()
}

func (s *HandoffService) broadcast(handoff models.AgentHandoff) {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	for _, listener := range s.listeners {
		listener(handoff)
	}
}
