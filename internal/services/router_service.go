package services

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/logging"
	"modelmux/internal/models"

	"github.com/google/uuid"
)

// RouterService evaluates routing rules against request contexts and hands
// back the model the caller should invoke. Resolution order: explicit task
// assignment, then content-based rules, then the fixed default model.
type RouterService struct {
	registry    *RegistryService
	assignments *AssignmentService
	db          *database.DB   // may be nil: rules are then in-memory only
	writer      *PersistWriter // may be nil
	defaultModel string

	mu          sync.RWMutex
	rules       []models.RoutingRule // sorted by priority desc, insertion order preserved on ties
	regexCache  map[string]*regexp.Regexp
	badPatterns map[string]bool // patterns that failed to compile, logged once
}

// NewRouterService creates a router seeded with the built-in rule set and
// any rules persisted in the database.
func NewRouterService(registry *RegistryService, assignments *AssignmentService, db *database.DB, writer *PersistWriter, defaultModel string) *RouterService {
	s := &RouterService{
		registry:     registry,
		assignments:  assignments,
		db:           db,
		writer:       writer,
		defaultModel: defaultModel,
		regexCache:   make(map[string]*regexp.Regexp),
		badPatterns:  make(map[string]bool),
	}

	s.rules = defaultRules()
	s.sortRules()

	if db != nil {
		if err := s.loadPersistedRules(); err != nil {
			log.Printf("⚠️ [ROUTER] Failed to load persisted rules: %v", err)
		}
	}

	log.Printf("🧭 [ROUTER] Initialized with %d rules (default model: %s)", len(s.rules), defaultModel)
	return s
}

// Route resolves a routing decision for the given request context
func (s *RouterService) Route(ctx models.RoutingContext) (*models.RoutingDecision, error) {
	start := time.Now()
	decision, err := s.route(ctx)
	if err == nil && decision != nil {
		if m := GetMetrics(); m != nil {
			m.RecordRouteDecision(decision.Source, decision.Fallback)
			m.RecordRouteLatency(time.Since(start).Seconds())
		}
	}
	return decision, err
}

func (s *RouterService) route(ctx models.RoutingContext) (*models.RoutingDecision, error) {
	if ctx.Content == "" && ctx.TaskType == "" && ctx.ContentType == "" && ctx.Command == "" {
		return nil, fmt.Errorf("routing context requires content, task type, content type, or command")
	}

	// Explicit hierarchical assignment wins over content rules
	if ctx.TaskType != "" && s.assignments != nil {
		if decision := s.resolveAssignment(ctx); decision != nil {
			return decision, nil
		}
	}

	// Writers sort and replace elements of the backing array in place, so
	// evaluation walks a private copy taken under the read lock.
	s.mu.RLock()
	rules := make([]models.RoutingRule, len(s.rules))
	copy(rules, s.rules)
	s.mu.RUnlock()

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		if !s.ruleMatches(rule, &ctx) {
			continue
		}

		// Conditions matched: prefer the target, then the fallback. A rule
		// with neither available is treated as non-matching so requests are
		// never routed into a dead backend.
		if s.registry.IsModelAvailable(rule.TargetModel) {
			return &models.RoutingDecision{
				ModelID:     rule.TargetModel,
				Agent:       s.agentFor(rule.TargetModel),
				Reason:      fmt.Sprintf("Matched rule %q", rule.Name),
				MatchedRule: rule.ID,
				Source:      "rule",
			}, nil
		}
		if rule.FallbackModel != "" && s.registry.IsModelAvailable(rule.FallbackModel) {
			return &models.RoutingDecision{
				ModelID:     rule.FallbackModel,
				Agent:       s.agentFor(rule.FallbackModel),
				Reason:      fmt.Sprintf("Matched rule %q; target %s unavailable, using fallback", rule.Name, rule.TargetModel),
				MatchedRule: rule.ID,
				Source:      "rule",
				Fallback:    true,
			}, nil
		}

		log.Printf("⚠️ [ROUTER] Rule %q matched but target and fallback are both unavailable, continuing", rule.Name)
	}

	return &models.RoutingDecision{
		ModelID: s.defaultModel,
		Agent:   s.agentFor(s.defaultModel),
		Reason:  "No routing rule matched; using default model",
		Source:  "default",
	}, nil
}

// resolveAssignment turns a matching task assignment into a decision, or nil
// when no assignment names an available model.
func (s *RouterService) resolveAssignment(ctx models.RoutingContext) *models.RoutingDecision {
	assignment := s.assignments.GetAssignment(ctx.TaskType, models.Actor{
		UserID:    ctx.UserID,
		AccountID: ctx.AccountID,
		TeamID:    ctx.TeamID,
	})
	if assignment == nil {
		return nil
	}

	candidates := append([]string{assignment.PrimaryModel}, assignment.FallbackModel)
	candidates = append(candidates, assignment.AllowedModels...)

	for i, modelID := range candidates {
		if modelID == "" || !s.registry.IsModelAvailable(modelID) {
			continue
		}
		reason := fmt.Sprintf("Assigned model for task %q (%s level)", assignment.TaskType, assignment.Level)
		if i > 0 {
			reason = fmt.Sprintf("Assigned fallback for task %q (%s level); primary %s unavailable", assignment.TaskType, assignment.Level, assignment.PrimaryModel)
		}
		return &models.RoutingDecision{
			ModelID:  modelID,
			Agent:    s.agentFor(modelID),
			Reason:   reason,
			Source:   "assignment",
			Fallback: i > 0,
		}
	}

	logging.WithRouting(ctx.TaskType, ctx.AccountID, ctx.UserID).Warn("assignment names no available model, falling through to rules")
	return nil
}

// ruleMatches evaluates a rule's conditions with OR semantics
func (s *RouterService) ruleMatches(rule *models.RoutingRule, ctx *models.RoutingContext) bool {
	for i := range rule.Conditions {
		matched, err := s.evaluateCondition(&rule.Conditions[i], ctx)
		if err != nil {
			// Malformed condition (e.g. invalid regex): skip the whole rule
			// rather than aborting the routing pass.
			s.logBadCondition(rule, err)
			return false
		}
		if matched {
			return true
		}
	}
	return false
}

func (s *RouterService) logBadCondition(rule *models.RoutingRule, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.badPatterns[rule.ID] {
		s.badPatterns[rule.ID] = true
		log.Printf("⚠️ [ROUTER] Skipping rule %q: %v", rule.Name, err)
	}
}

// evaluateCondition applies one field/operator/value predicate to the context
func (s *RouterService) evaluateCondition(cond *models.RuleCondition, ctx *models.RoutingContext) (bool, error) {
	switch cond.Field {
	case models.FieldContextLength:
		return compareNumber(float64(ctx.ContextLength), cond.Operator, cond.Value)
	case models.FieldTimeSensitive:
		want, ok := cond.Value.(bool)
		if !ok {
			return false, fmt.Errorf("time_sensitive condition requires a boolean value")
		}
		if cond.Operator != models.OpEquals {
			return false, fmt.Errorf("unsupported operator %q for time_sensitive", cond.Operator)
		}
		return ctx.TimeSensitive == want, nil
	}

	var fieldValue string
	switch cond.Field {
	case models.FieldContent:
		fieldValue = ctx.Content
	case models.FieldContentType:
		fieldValue = ctx.ContentType
	case models.FieldCommand:
		fieldValue = ctx.Command
	case models.FieldFileExtension:
		fieldValue = ctx.FileExtension
	case models.FieldRole:
		fieldValue = ctx.Role
	default:
		return false, fmt.Errorf("unknown condition field %q", cond.Field)
	}

	return s.compareString(fieldValue, cond.Operator, cond.Value)
}

// compareString applies string operators case-insensitively
func (s *RouterService) compareString(fieldValue, operator string, value interface{}) (bool, error) {
	lowered := strings.ToLower(fieldValue)

	switch operator {
	case models.OpEquals:
		for _, v := range valueStrings(value) {
			if lowered == strings.ToLower(v) {
				return true, nil
			}
		}
		return false, nil
	case models.OpContains:
		for _, v := range valueStrings(value) {
			if strings.Contains(lowered, strings.ToLower(v)) {
				return true, nil
			}
		}
		return false, nil
	case models.OpStartsWith:
		for _, v := range valueStrings(value) {
			if strings.HasPrefix(lowered, strings.ToLower(v)) {
				return true, nil
			}
		}
		return false, nil
	case models.OpRegex:
		patterns := valueStrings(value)
		if len(patterns) == 0 {
			return false, fmt.Errorf("regex condition has no pattern")
		}
		re, err := s.compileRegex(patterns[0])
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern %q: %w", patterns[0], err)
		}
		return re.MatchString(fieldValue), nil
	case models.OpGreaterThan, models.OpLessThan:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(fieldValue), 64)
		if err != nil {
			return false, nil
		}
		return compareNumber(parsed, operator, value)
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// compileRegex caches compiled case-insensitive patterns
func (s *RouterService) compileRegex(pattern string) (*regexp.Regexp, error) {
	s.mu.RLock()
	re, ok := s.regexCache[pattern]
	s.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.regexCache[pattern] = re
	s.mu.Unlock()
	return re, nil
}

// compareNumber handles numeric operators with a coercible comparison value
func compareNumber(fieldValue float64, operator string, value interface{}) (bool, error) {
	threshold, err := toFloat(value)
	if err != nil {
		return false, err
	}

	switch operator {
	case models.OpGreaterThan:
		return fieldValue > threshold, nil
	case models.OpLessThan:
		return fieldValue < threshold, nil
	case models.OpEquals:
		return fieldValue == threshold, nil
	default:
		return false, fmt.Errorf("unsupported numeric operator %q", operator)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("value %v is not numeric", value)
	}
}

// valueStrings normalizes a scalar-or-array condition value into strings
func valueStrings(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// agentFor derives the responsible serving agent from a model's vendor
func (s *RouterService) agentFor(modelID string) string {
	desc, err := s.registry.Lookup(modelID)
	if err != nil {
		return ""
	}
	return desc.Vendor
}

// ========== Rule Management ==========

// GetRules returns a copy of the current rule set in evaluation order
func (s *RouterService) GetRules() []models.RoutingRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]models.RoutingRule, len(s.rules))
	copy(rules, s.rules)
	return rules
}

// AddRule adds a rule to the active set and persists it asynchronously
func (s *RouterService) AddRule(rule models.RoutingRule) (*models.RoutingRule, error) {
	if rule.TargetModel == "" {
		return nil, fmt.Errorf("rule requires a target model")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	s.mu.Lock()
	s.rules = append(s.rules, rule)
	s.sortRulesLocked()
	s.mu.Unlock()

	s.persistRule(rule)
	log.Printf("✅ [ROUTER] Added rule %q (priority %d)", rule.Name, rule.Priority)
	return &rule, nil
}

// UpdateRule replaces an existing rule by id
func (s *RouterService) UpdateRule(rule models.RoutingRule) error {
	s.mu.Lock()
	found := false
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			rule.CreatedAt = s.rules[i].CreatedAt
			rule.UpdatedAt = time.Now()
			s.rules[i] = rule
			found = true
			break
		}
	}
	if found {
		delete(s.badPatterns, rule.ID)
		s.sortRulesLocked()
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}

	s.persistRule(rule)
	return nil
}

// DeleteRule removes a rule by id
func (s *RouterService) DeleteRule(ruleID string) error {
	s.mu.Lock()
	found := false
	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			found = true
			break
		}
	}
	delete(s.badPatterns, ruleID)
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("rule not found: %s", ruleID)
	}

	if s.db != nil {
		db := s.db
		s.enqueue("delete rule "+ruleID, func() error {
			_, err := db.Exec("DELETE FROM routing_rules WHERE id = ?", ruleID)
			return err
		})
	}
	return nil
}

// ReplaceRules swaps the entire active rule set (used by the rules file
// hot-reload). Replaced rules are not persisted; the file is their source.
func (s *RouterService) ReplaceRules(rules []models.RoutingRule) {
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.New().String()
		}
	}

	s.mu.Lock()
	s.rules = rules
	s.badPatterns = make(map[string]bool)
	s.sortRulesLocked()
	s.mu.Unlock()

	log.Printf("🔄 [ROUTER] Rule set replaced (%d rules)", len(rules))
}

func (s *RouterService) sortRules() {
	s.mu.Lock()
	s.sortRulesLocked()
	s.mu.Unlock()
}

// sortRulesLocked orders rules by priority descending. The sort is stable so
// equal priorities keep insertion order.
func (s *RouterService) sortRulesLocked() {
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].Priority > s.rules[j].Priority
	})
}

func (s *RouterService) persistRule(rule models.RoutingRule) {
	if s.db == nil {
		return
	}
	db := s.db
	s.enqueue("upsert rule "+rule.ID, func() error {
		conditions, err := json.Marshal(rule.Conditions)
		if err != nil {
			return err
		}
		_, err = db.Exec(`
			INSERT OR REPLACE INTO routing_rules (id, name, priority, conditions, target_model, fallback_model, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rule.ID, rule.Name, rule.Priority, string(conditions), rule.TargetModel, rule.FallbackModel, rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
		return err
	})
}

// enqueue routes through the async writer when present, otherwise writes inline
func (s *RouterService) enqueue(name string, fn func() error) {
	if s.writer != nil {
		s.writer.Enqueue(name, fn)
		return
	}
	if err := fn(); err != nil {
		log.Printf("⚠️ [ROUTER] %s failed: %v", name, err)
	}
}

// loadPersistedRules overlays stored rules onto the built-in set
func (s *RouterService) loadPersistedRules() error {
	rows, err := s.db.Query(`
		SELECT id, name, priority, conditions, target_model, fallback_model, enabled, created_at, updated_at
		FROM routing_rules
		ORDER BY created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var rule models.RoutingRule
		var conditions string
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Priority, &conditions, &rule.TargetModel, &rule.FallbackModel, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			log.Printf("⚠️ [ROUTER] Skipping persisted rule %s with malformed conditions: %v", rule.ID, err)
			continue
		}

		s.mu.Lock()
		replaced := false
		for i := range s.rules {
			if s.rules[i].ID == rule.ID {
				s.rules[i] = rule
				replaced = true
				break
			}
		}
		if !replaced {
			s.rules = append(s.rules, rule)
		}
		s.mu.Unlock()
		loaded++
	}

	s.sortRules()
	if loaded > 0 {
		log.Printf("📦 [ROUTER] Loaded %d persisted rules", loaded)
	}
	return nil
}

// defaultRules is the built-in rule set, active until replaced or extended
func defaultRules() []models.RoutingRule {
	return []models.RoutingRule{
		{
			ID:       "builtin-screenshot-analysis",
			Name:     "Screenshot Analysis",
			Priority: 100,
			Conditions: []models.RuleCondition{
				{Field: models.FieldContentType, Operator: models.OpEquals, Value: "image"},
				{Field: models.FieldContent, Operator: models.OpContains, Value: []string{"screenshot", "screen shot"}},
			},
			TargetModel:   "claude-sonnet-4",
			FallbackModel: "gpt-4o",
			Enabled:       true,
		},
		{
			ID:       "builtin-code-tasks",
			Name:     "Code Tasks",
			Priority: 80,
			Conditions: []models.RuleCondition{
				{Field: models.FieldCommand, Operator: models.OpStartsWith, Value: "/code"},
				{Field: models.FieldFileExtension, Operator: models.OpEquals, Value: []string{".go", ".py", ".ts", ".js", ".rs"}},
				{Field: models.FieldContent, Operator: models.OpRegex, Value: `\b(refactor|implement|debug|stack trace)\b`},
			},
			TargetModel:   "claude-sonnet-4",
			FallbackModel: "deepseek-v3",
			Enabled:       true,
		},
		{
			ID:       "builtin-long-context",
			Name:     "Long Context",
			Priority: 70,
			Conditions: []models.RuleCondition{
				{Field: models.FieldContextLength, Operator: models.OpGreaterThan, Value: 60000},
			},
			TargetModel:   "claude-sonnet-4",
			FallbackModel: "deepseek-v3",
			Enabled:       true,
		},
		{
			ID:       "builtin-time-sensitive",
			Name:     "Time Sensitive",
			Priority: 30,
			Conditions: []models.RuleCondition{
				{Field: models.FieldTimeSensitive, Operator: models.OpEquals, Value: true},
			},
			TargetModel:   "gpt-4o-mini",
			FallbackModel: "claude-haiku-3.5",
			Enabled:       true,
		},
	}
}
