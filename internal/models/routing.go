package models

import "time"

// Condition operators supported by the rule engine
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpRegex       = "regex"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Context field selectors a condition can match against
const (
	FieldContent       = "content"
	FieldContentType   = "content_type"
	FieldCommand       = "command"
	FieldFileExtension = "file_extension"
	FieldRole          = "role"
	FieldContextLength = "context_length"
	FieldTimeSensitive = "time_sensitive"
)

// RuleCondition is a single field/operator/value predicate.
// Value may be a scalar or, for "contains", an array (any-of semantics).
type RuleCondition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

// RoutingRule maps matching request contexts to a target model.
// Conditions are OR-combined: any single satisfied condition triggers the rule.
type RoutingRule struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Priority      int             `json:"priority" yaml:"priority"` // higher wins
	Conditions    []RuleCondition `json:"conditions" yaml:"conditions"`
	TargetModel   string          `json:"target_model" yaml:"target_model"`
	FallbackModel string          `json:"fallback_model" yaml:"fallback_model"`
	Enabled       bool            `json:"enabled" yaml:"enabled"`
	CreatedAt     time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"-"`
}

// RulesFile is the rules.yaml file structure
type RulesFile struct {
	Rules []RoutingRule `yaml:"rules"`
}

// RoutingContext carries everything the router may inspect for one request
type RoutingContext struct {
	TaskType      string `json:"task_type,omitempty"`
	Content       string `json:"content,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	Command       string `json:"command,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
	Role          string `json:"role,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	TimeSensitive bool   `json:"time_sensitive,omitempty"`

	// Caller identity, used for assignment resolution scoping
	AccountID string `json:"account_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RoutingDecision is the outcome handed back to the caller.
// The caller performs the actual vendor invocation with the chosen model.
type RoutingDecision struct {
	ModelID     string `json:"model_id"`
	Agent       string `json:"agent"`
	Reason      string `json:"reason"`
	MatchedRule string `json:"matched_rule,omitempty"` // rule ID, empty when no rule matched
	Source      string `json:"source"`                 // "assignment", "rule", "default"
	Fallback    bool   `json:"fallback"`               // true when the rule's fallback model was used
}
