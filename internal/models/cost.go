package models

import "time"

// Budget alert types
const (
	AlertDailyLimit   = "daily_limit"
	AlertMonthlyLimit = "monthly_limit"
)

// CostBreakdown is the result of a pure cost calculation
type CostBreakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// CostEntry is one recorded invocation. Derived fields are written by the
// cost ledger only; entries are never user-edited.
type CostEntry struct {
	ID           string    `json:"id"`
	ModelID      string    `json:"model_id"`
	AccountID    string    `json:"account_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	InputCost    float64   `json:"input_cost"`
	OutputCost   float64   `json:"output_cost"`
	TotalCost    float64   `json:"total_cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// CostAlert is the advisory signal raised when accumulated cost crosses a
// configured budget. Alerts never block requests.
type CostAlert struct {
	AccountID string    `json:"account_id"`
	AlertType string    `json:"alert_type"` // "daily_limit" or "monthly_limit"
	Budget    float64   `json:"budget"`
	Spent     float64   `json:"spent"`
	Window    string    `json:"window"` // "2006-01-02" for daily, "2006-01" for monthly
	Timestamp time.Time `json:"timestamp"`
}

// BudgetConfig is per-account budget configuration read from the persistence
// collaborator. A zero value means no budget is configured for that window.
type BudgetConfig struct {
	AccountID     string  `json:"account_id" bson:"accountId"`
	DailyBudget   float64 `json:"daily_budget,omitempty" bson:"dailyBudget,omitempty"`
	MonthlyBudget float64 `json:"monthly_budget,omitempty" bson:"monthlyBudget,omitempty"`
}

// CostTotals is a snapshot of the in-memory running sums. Totals are a cache
// over the persisted entries, rebuildable from zero without correctness loss.
type CostTotals struct {
	Global     float64            `json:"global"`
	Entries    int64              `json:"entries"`
	PerAccount map[string]float64 `json:"per_account"`
	PerModel   map[string]float64 `json:"per_model"`
}
