package models

import "time"

// Note types stored in the session context store
const (
	NoteTypeContext    = "context"
	NoteTypeHandoff    = "handoff"
	NoteTypeSummary    = "summary"
	NoteTypePreference = "preference"
	NoteTypeError      = "error"
)

// SessionNote is a short-lived typed memory fragment attached to a session.
// Notes are append-only; content is never mutated after creation.
type SessionNote struct {
	ID        string                 `json:"id" bson:"_id"`
	SessionID string                 `json:"session_id" bson:"sessionId"`
	AccountID string                 `json:"account_id,omitempty" bson:"accountId,omitempty"`
	UserID    string                 `json:"user_id,omitempty" bson:"userId,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty" bson:"agentId,omitempty"`
	ModelID   string                 `json:"model_id,omitempty" bson:"modelId,omitempty"`
	NoteType  string                 `json:"note_type" bson:"noteType"`
	Content   string                 `json:"content" bson:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"createdAt"`
	ExpiresAt time.Time              `json:"expires_at" bson:"expiresAt"`
}

// Expired reports whether the note's TTL has elapsed
func (n *SessionNote) Expired(now time.Time) bool {
	return !n.ExpiresAt.After(now)
}

// AgentHandoff records an explicit transfer of serving responsibility
type AgentHandoff struct {
	ID             string    `json:"id"`
	FromAgent      string    `json:"from_agent"`
	FromModel      string    `json:"from_model"`
	ToAgent        string    `json:"to_agent"`
	ToModel        string    `json:"to_model"`
	Reason         string    `json:"reason"`
	ContextSummary string    `json:"context_summary,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Seamless       bool      `json:"seamless"`
	Timestamp      time.Time `json:"timestamp"`
}

// HandoffStats summarizes recorded handoff history
type HandoffStats struct {
	TotalHandoffs    int            `json:"total_handoffs"`
	SeamlessHandoffs int            `json:"seamless_handoffs"`
	ByToAgent        map[string]int `json:"by_to_agent"`
	LastHandoffAt    *time.Time     `json:"last_handoff_at,omitempty"`
}
