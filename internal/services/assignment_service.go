package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/models"
)

// PermissionError is returned when an actor's role rank does not cover the
// hierarchy level they are writing at. The write mutates nothing.
type PermissionError struct {
	Role    string `json:"role"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (e *PermissionError) Error() string {
	return e.Message
}

// AssignmentService resolves the single governing task assignment per
// (task type, caller context) by walking the user > team > company > global
// hierarchy, and gates writes by actor role rank.
type AssignmentService struct {
	registry *RegistryService
	db       *database.DB   // may be nil
	writer   *PersistWriter // may be nil

	mu          sync.RWMutex
	assignments map[string]*models.AIAssignment // key: level|scopeOwner|taskType
	order       []string                        // insertion order, for stable tie-breaking
}

// NewAssignmentService creates the resolver and loads any persisted assignments
func NewAssignmentService(registry *RegistryService, db *database.DB, writer *PersistWriter) *AssignmentService {
	s := &AssignmentService{
		registry:    registry,
		db:          db,
		writer:      writer,
		assignments: make(map[string]*models.AIAssignment),
	}

	if db != nil {
		if err := s.loadPersisted(); err != nil {
			log.Printf("⚠️ [ASSIGNMENT] Failed to load persisted assignments: %v", err)
		}
	}

	return s
}

// assignmentKey partitions storage so a user-level write never collides with
// a company-level one for the same task type.
func assignmentKey(level, scopeOwner, taskType string) string {
	if level == models.LevelGlobal {
		scopeOwner = "global"
	}
	return level + "|" + scopeOwner + "|" + taskType
}

// GetAssignment returns the single effective assignment for a task type and
// caller context, or the built-in default, or nil.
func (s *AssignmentService) GetAssignment(taskType string, actor models.Actor) *models.AIAssignment {
	now := time.Now()

	s.mu.RLock()
	var matched []*models.AIAssignment
	for _, key := range s.order {
		a := s.assignments[key]
		if a == nil || a.TaskType != taskType || a.Expired(now) {
			continue
		}
		if !levelApplies(a.Level, actor) {
			continue
		}
		matched = append(matched, a)
	}
	s.mu.RUnlock()

	if len(matched) == 0 {
		return builtinDefault(taskType)
	}

	// Specificity first, then priority. Stable sort keeps insertion order on
	// full ties so repeated resolutions are deterministic.
	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := models.LevelSpecificity(matched[i].Level), models.LevelSpecificity(matched[j].Level)
		if si != sj {
			return si > sj
		}
		return matched[i].Priority > matched[j].Priority
	})

	result := *matched[0]
	return &result
}

// levelApplies gates applicability by presence of the corresponding caller
// id. Finer scoping by id value happens via storage-key partitioning.
func levelApplies(level string, actor models.Actor) bool {
	switch level {
	case models.LevelGlobal:
		return true
	case models.LevelCompany:
		return actor.AccountID != ""
	case models.LevelTeam:
		return actor.TeamID != ""
	case models.LevelUser:
		return actor.UserID != ""
	default:
		return false
	}
}

// SetAssignment writes an assignment after checking the actor's role rank
// against the target level and validating the primary model against the
// registry. Rejected writes mutate nothing.
func (s *AssignmentService) SetAssignment(taskType string, assignment models.AIAssignment, actor models.Actor) (*models.AIAssignment, error) {
	if taskType == "" {
		return nil, fmt.Errorf("task type is required")
	}
	if !models.ValidLevel(assignment.Level) {
		return nil, fmt.Errorf("invalid assignment level: %s", assignment.Level)
	}

	required := models.MinRankForLevel(assignment.Level)
	if models.RoleRank(actor.Role) < required {
		return nil, &PermissionError{
			Role:    actor.Role,
			Level:   assignment.Level,
			Message: fmt.Sprintf("role %q (rank %d) may not write %s-level assignments (requires rank %d)", actor.Role, models.RoleRank(actor.Role), assignment.Level, required),
		}
	}

	if _, err := s.registry.Lookup(assignment.PrimaryModel); err != nil {
		return nil, fmt.Errorf("primary model %q is not in the registry", assignment.PrimaryModel)
	}

	assignment.TaskType = taskType
	if assignment.ScopeOwnerID == "" {
		assignment.ScopeOwnerID = scopeOwnerFor(assignment.Level, actor)
	}
	assignment.CreatedBy = actor.UserID
	assignment.CreatedAt = time.Now()

	key := assignmentKey(assignment.Level, assignment.ScopeOwnerID, taskType)

	s.mu.Lock()
	if _, exists := s.assignments[key]; !exists {
		s.order = append(s.order, key)
	}
	stored := assignment
	s.assignments[key] = &stored
	s.mu.Unlock()

	s.persist(assignment)
	log.Printf("✅ [ASSIGNMENT] Set %s-level assignment for task %q -> %s (by %s)", assignment.Level, taskType, assignment.PrimaryModel, actor.UserID)
	return &assignment, nil
}

// DeleteAssignment removes an assignment, gated like SetAssignment
func (s *AssignmentService) DeleteAssignment(taskType, level, scopeOwner string, actor models.Actor) error {
	required := models.MinRankForLevel(level)
	if models.RoleRank(actor.Role) < required {
		return &PermissionError{
			Role:    actor.Role,
			Level:   level,
			Message: fmt.Sprintf("role %q may not delete %s-level assignments", actor.Role, level),
		}
	}

	key := assignmentKey(level, scopeOwner, taskType)

	s.mu.Lock()
	_, exists := s.assignments[key]
	if exists {
		delete(s.assignments, key)
		for i := range s.order {
			if s.order[i] == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("assignment not found")
	}

	if s.db != nil {
		db := s.db
		owner := scopeOwner
		if level == models.LevelGlobal {
			owner = "global"
		}
		s.enqueue("delete assignment "+key, func() error {
			_, err := db.Exec("DELETE FROM ai_assignments WHERE level = ? AND scope_owner_id = ? AND task_type = ?", level, owner, taskType)
			return err
		})
	}
	return nil
}

// GetAllAssignments returns every stored assignment in insertion order
func (s *AssignmentService) GetAllAssignments() []models.AIAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.AIAssignment, 0, len(s.order))
	for _, key := range s.order {
		if a := s.assignments[key]; a != nil {
			result = append(result, *a)
		}
	}
	return result
}

// scopeOwnerFor derives the storage partition owner from the actor when the
// caller did not name one explicitly.
func scopeOwnerFor(level string, actor models.Actor) string {
	switch level {
	case models.LevelUser:
		return actor.UserID
	case models.LevelTeam:
		return actor.TeamID
	case models.LevelCompany:
		return actor.AccountID
	default:
		return ""
	}
}

func (s *AssignmentService) persist(a models.AIAssignment) {
	if s.db == nil {
		return
	}
	db := s.db
	owner := a.ScopeOwnerID
	if a.Level == models.LevelGlobal {
		owner = "global"
	}
	s.enqueue("upsert assignment "+assignmentKey(a.Level, a.ScopeOwnerID, a.TaskType), func() error {
		allowed, err := json.Marshal(a.AllowedModels)
		if err != nil {
			return err
		}
		_, err = db.Exec(`
			INSERT OR REPLACE INTO ai_assignments (level, scope_owner_id, task_type, primary_model, fallback_model, allowed_models, priority, expires_at, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.Level, owner, a.TaskType, a.PrimaryModel, a.FallbackModel, string(allowed), a.Priority, a.ExpiresAt, a.CreatedBy, a.CreatedAt)
		return err
	})
}

func (s *AssignmentService) enqueue(name string, fn func() error) {
	if s.writer != nil {
		s.writer.Enqueue(name, fn)
		return
	}
	if err := fn(); err != nil {
		log.Printf("⚠️ [ASSIGNMENT] %s failed: %v", name, err)
	}
}

func (s *AssignmentService) loadPersisted() error {
	rows, err := s.db.Query(`
		SELECT level, scope_owner_id, task_type, primary_model, fallback_model, allowed_models, priority, expires_at, created_by, created_at
		FROM ai_assignments
		ORDER BY created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var a models.AIAssignment
		var owner, allowed string
		if err := rows.Scan(&a.Level, &owner, &a.TaskType, &a.PrimaryModel, &a.FallbackModel, &allowed, &a.Priority, &a.ExpiresAt, &a.CreatedBy, &a.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		if owner != "global" {
			a.ScopeOwnerID = owner
		}
		if allowed != "" {
			if err := json.Unmarshal([]byte(allowed), &a.AllowedModels); err != nil {
				log.Printf("⚠️ [ASSIGNMENT] Malformed allowed models for task %q, ignoring list: %v", a.TaskType, err)
			}
		}

		key := assignmentKey(a.Level, a.ScopeOwnerID, a.TaskType)
		stored := a
		s.assignments[key] = &stored
		s.order = append(s.order, key)
		loaded++
	}

	if loaded > 0 {
		log.Printf("📦 [ASSIGNMENT] Loaded %d persisted assignments", loaded)
	}
	return nil
}

// builtinDefault returns the shipped global default for a task type.
// Defaults exist even with zero stored rows.
func builtinDefault(taskType string) *models.AIAssignment {
	defaults := map[string]models.AIAssignment{
		"chat": {
			TaskType:      "chat",
			PrimaryModel:  "gpt-4o-mini",
			FallbackModel: "claude-haiku-3.5",
			Level:         models.LevelGlobal,
		},
		"code_generation": {
			TaskType:      "code_generation",
			PrimaryModel:  "claude-sonnet-4",
			FallbackModel: "deepseek-v3",
			Level:         models.LevelGlobal,
		},
		"screenshot_analysis": {
			TaskType:      "screenshot_analysis",
			PrimaryModel:  "claude-sonnet-4",
			FallbackModel: "gpt-4o",
			Level:         models.LevelGlobal,
		},
		"summarization": {
			TaskType:      "summarization",
			PrimaryModel:  "gpt-4o-mini",
			FallbackModel: "llama-3.3-70b",
			Level:         models.LevelGlobal,
		},
	}

	if a, ok := defaults[taskType]; ok {
		return &a
	}
	return nil
}
