package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/models"

	"github.com/google/uuid"
)

// Conservative fallback pricing (USD per million tokens) applied when a model
// is missing from the registry. Overestimating beats silently undercounting.
const (
	defaultInputCostPerM  = 5.0
	defaultOutputCostPerM = 15.0
)

// Window counter retention. Daily counters outlive their day by enough to
// survive timezone skew; monthly ones outlive the longest month.
const (
	dailyWindowExpiry   = 48 * time.Hour
	monthlyWindowExpiry = 35 * 24 * time.Hour
)

// AlertListener receives budget alerts. Delivery is synchronous and
// best-effort; a listener must never block.
type AlertListener func(models.CostAlert)

// CostService is the cost ledger: pure per-invocation calculation, running
// aggregation, and advisory budget alerts. Aggregation only moves upward;
// alert evaluation failures never affect recording.
type CostService struct {
	registry *RegistryService
	budgets  *BudgetService
	redis    *RedisService  // may be nil: window counters stay in memory
	db       *database.DB   // may be nil
	writer   *PersistWriter // may be nil

	// When true an alert fires once per (account, type, window); otherwise
	// every recording past the budget re-raises.
	oncePerWindow bool

	mu         sync.Mutex
	global     float64
	entries    int64
	perAccount map[string]float64
	perModel   map[string]float64
	windows    map[string]float64 // in-memory window counters (redis fallback)
	alerted    map[string]bool

	listenerMu sync.RWMutex
	listeners  map[int]AlertListener
	nextID     int
}

// NewCostService creates the cost ledger
func NewCostService(registry *RegistryService, budgets *BudgetService, redis *RedisService, db *database.DB, writer *PersistWriter, oncePerWindow bool) *CostService {
	return &CostService{
		registry:      registry,
		budgets:       budgets,
		redis:         redis,
		db:            db,
		writer:        writer,
		oncePerWindow: oncePerWindow,
		perAccount:    make(map[string]float64),
		perModel:      make(map[string]float64),
		windows:       make(map[string]float64),
		alerted:       make(map[string]bool),
		listeners:     make(map[int]AlertListener),
	}
}

// CalculateCost computes the cost of one invocation from per-million-token
// pricing. Deterministic: equal inputs always produce the identical
// breakdown. Unknown models get the conservative fallback pricing.
func (s *CostService) CalculateCost(modelID string, inputTokens, outputTokens int64) models.CostBreakdown {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	inPerM, outPerM := defaultInputCostPerM, defaultOutputCostPerM
	if desc, err := s.registry.Lookup(modelID); err == nil {
		inPerM, outPerM = desc.InputCostPerM, desc.OutputCostPerM
	} else {
		slog.Debug("no pricing for model, using conservative defaults", "model_id", modelID)
	}

	inputCost := float64(inputTokens) / 1_000_000 * inPerM
	outputCost := float64(outputTokens) / 1_000_000 * outPerM

	return models.CostBreakdown{
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  inputCost + outputCost,
	}
}

// RecordCost calculates and records one invocation: appends a ledger entry,
// bumps the running totals and window counters, and evaluates budgets.
// Returned alerts have already been delivered to listeners.
func (s *CostService) RecordCost(ctx context.Context, modelID, accountID, userID string, inputTokens, outputTokens int64) (*models.CostEntry, []models.CostAlert, error) {
	if modelID == "" {
		return nil, nil, fmt.Errorf("model id is required")
	}

	breakdown := s.CalculateCost(modelID, inputTokens, outputTokens)
	now := time.Now()

	entry := models.CostEntry{
		ID:           uuid.New().String(),
		ModelID:      modelID,
		AccountID:    accountID,
		UserID:       userID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    breakdown.InputCost,
		OutputCost:   breakdown.OutputCost,
		TotalCost:    breakdown.TotalCost,
		Timestamp:    now,
	}

	s.mu.Lock()
	s.global += entry.TotalCost
	s.entries++
	if accountID != "" {
		s.perAccount[accountID] += entry.TotalCost
	}
	s.perModel[modelID] += entry.TotalCost
	s.mu.Unlock()

	s.persistEntry(entry)

	if m := GetMetrics(); m != nil {
		m.RecordCost(modelID, entry.TotalCost)
	}

	// Budget evaluation is advisory: whatever happens here, the entry above
	// is already recorded.
	alerts := s.evaluateBudgets(ctx, accountID, entry.TotalCost, now)
	for _, alert := range alerts {
		s.broadcast(alert)
	}

	return &entry, alerts, nil
}

// GetTotals returns a snapshot of the running sums
func (s *CostService) GetTotals() models.CostTotals {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := models.CostTotals{
		Global:     s.global,
		Entries:    s.entries,
		PerAccount: make(map[string]float64, len(s.perAccount)),
		PerModel:   make(map[string]float64, len(s.perModel)),
	}
	for k, v := range s.perAccount {
		totals.PerAccount[k] = v
	}
	for k, v := range s.perModel {
		totals.PerModel[k] = v
	}
	return totals
}

// Subscribe registers an alert listener and returns its id for Unsubscribe
func (s *CostService) Subscribe(listener AlertListener) int {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	s.nextID++
	s.listeners[s.nextID] = listener
	return s.nextID
}

// Unsubscribe removes a previously registered alert listener
func (s *CostService) Unsubscribe(id int) {
	s.listenerMu.Lock()
	delete(s.listeners, id)
	s.listenerMu.Unlock()
}

// RollupDaily aggregates yesterday's ledger entries into the cost_daily
// table. Safe to re-run: the rollup replaces rather than appends.
func (s *CostService) RollupDaily() error {
	day := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	return s.RollupDay(day)
}

// RollupDay aggregates one day's ledger entries into cost_daily
func (s *CostService) RollupDay(day string) error {
	if s.db == nil {
		return nil
	}

	result, err := s.db.Exec(`
		INSERT OR REPLACE INTO cost_daily (day, account_id, model_id, entries, input_tokens, output_tokens, total_cost)
		SELECT ?, COALESCE(account_id, ''), model_id, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(total_cost)
		FROM cost_entries
		WHERE substr(created_at, 1, 10) = ?
		GROUP BY COALESCE(account_id, ''), model_id
	`, day, day)
	if err != nil {
		return fmt.Errorf("failed to roll up day %s: %w", day, err)
	}

	rows, _ := result.RowsAffected()
	log.Printf("📊 [COST] Daily rollup for %s wrote %d aggregate rows", day, rows)
	return nil
}

func (s *CostService) evaluateBudgets(ctx context.Context, accountID string, cost float64, now time.Time) []models.CostAlert {
	if accountID == "" || s.budgets == nil {
		// Anonymous recordings land in the running totals only; no spending
		// window advances and there is no budget to evaluate.
		return nil
	}

	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	dailySpent := s.addToWindow(ctx, "cost:daily:"+accountID+":"+day, cost, dailyWindowExpiry)
	monthlySpent := s.addToWindow(ctx, "cost:monthly:"+accountID+":"+month, cost, monthlyWindowExpiry)

	budget := s.budgets.GetBudget(ctx, accountID)
	if budget == nil {
		return nil
	}

	var alerts []models.CostAlert
	if budget.DailyBudget > 0 && dailySpent > budget.DailyBudget {
		if alert := s.raise(accountID, models.AlertDailyLimit, budget.DailyBudget, dailySpent, day, now); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	if budget.MonthlyBudget > 0 && monthlySpent > budget.MonthlyBudget {
		if alert := s.raise(accountID, models.AlertMonthlyLimit, budget.MonthlyBudget, monthlySpent, month, now); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// addToWindow bumps a rolling window counter and returns the new total.
// Redis keeps the counter shared across replicas; when it is absent or
// failing, the counter degrades to process memory.
func (s *CostService) addToWindow(ctx context.Context, key string, cost float64, expiry time.Duration) float64 {
	if s.redis != nil {
		total, err := s.redis.IncrByFloat(ctx, key, cost, expiry)
		if err == nil {
			return total
		}
		slog.Debug("window counter redis write failed, falling back to memory", "key", key, "error", err)
	}

	s.mu.Lock()
	s.windows[key] += cost
	total := s.windows[key]
	s.mu.Unlock()
	return total
}

func (s *CostService) raise(accountID, alertType string, budget, spent float64, window string, now time.Time) *models.CostAlert {
	if s.oncePerWindow {
		key := accountID + "|" + alertType + "|" + window
		s.mu.Lock()
		seen := s.alerted[key]
		s.alerted[key] = true
		s.mu.Unlock()
		if seen {
			return nil
		}
	}

	log.Printf("🚨 [COST] Budget alert for account %s: %s spent %.4f of %.2f (%s)", accountID, alertType, spent, budget, window)
	if m := GetMetrics(); m != nil {
		m.RecordBudgetAlert(alertType)
	}

	return &models.CostAlert{
		AccountID: accountID,
		AlertType: alertType,
		Budget:    budget,
		Spent:     spent,
		Window:    window,
		Timestamp: now,
	}
}

func (s *CostService) broadcast(alert models.CostAlert) {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	for _, listener := range s.listeners {
		listener(alert)
	}
}

func (s *CostService) persistEntry(entry models.CostEntry) {
	if s.db == nil {
		return
	}
	db := s.db
	write := func() error {
		_, err := db.Exec(`
			INSERT INTO cost_entries (id, model_id, account_id, user_id, input_tokens, output_tokens, input_cost, output_cost, total_cost, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, entry.ModelID, entry.AccountID, entry.UserID, entry.InputTokens, entry.OutputTokens, entry.InputCost, entry.OutputCost, entry.TotalCost, entry.Timestamp.UTC().Format("2006-01-02 15:04:05.000"))
		return err
	}

	if s.writer != nil {
		s.writer.Enqueue("insert cost entry "+entry.ID, write)
		return
	}
	if err := write(); err != nil {
		slog.Debug("cost entry persist failed", "entry_id", entry.ID, "error", err)
	}
}
