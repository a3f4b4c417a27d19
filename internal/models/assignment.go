package models

import "time"

// Assignment levels, most specific first
const (
	LevelUser    = "user"
	LevelTeam    = "team"
	LevelCompany = "company"
	LevelGlobal  = "global"
)

// Actor roles, in ascending rank order
const (
	RoleGuest      = "guest"
	RoleUser       = "user"
	RoleTeamAdmin  = "team_admin"
	RoleOrgAdmin   = "org_admin"
	RoleSuperadmin = "superadmin"
)

// roleRanks maps role names to their numeric rank
var roleRanks = map[string]int{
	RoleGuest:      0,
	RoleUser:       1,
	RoleTeamAdmin:  2,
	RoleOrgAdmin:   3,
	RoleSuperadmin: 4,
}

// levelSpecificity orders assignment levels for resolution (higher wins)
var levelSpecificity = map[string]int{
	LevelUser:    4,
	LevelTeam:    3,
	LevelCompany: 2,
	LevelGlobal:  1,
}

// levelMinRank is the minimum role rank required to write at each level
var levelMinRank = map[string]int{
	LevelUser:    1,
	LevelTeam:    2,
	LevelCompany: 3,
	LevelGlobal:  4,
}

// RoleRank returns the numeric rank for a role name. Unknown roles rank as guest.
func RoleRank(role string) int {
	return roleRanks[role]
}

// LevelSpecificity returns the resolution ordering weight for a level
func LevelSpecificity(level string) int {
	return levelSpecificity[level]
}

// MinRankForLevel returns the minimum role rank required to write at a level.
// Unknown levels require the top rank.
func MinRankForLevel(level string) int {
	if rank, ok := levelMinRank[level]; ok {
		return rank
	}
	return roleRanks[RoleSuperadmin]
}

// ValidLevel reports whether a level name is one of the four hierarchy levels
func ValidLevel(level string) bool {
	_, ok := levelSpecificity[level]
	return ok
}

// Actor is the caller identity handed in by the authentication collaborator.
// This core consults the role rank only; it never validates identity.
type Actor struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	Role      string `json:"role"`
}

// AIAssignment binds a task type to a model at one hierarchy level
type AIAssignment struct {
	TaskType      string     `json:"task_type"`
	PrimaryModel  string     `json:"primary_model"`
	FallbackModel string     `json:"fallback_model,omitempty"`
	AllowedModels []string   `json:"allowed_models,omitempty"`
	Level         string     `json:"level"`
	ScopeOwnerID  string     `json:"scope_owner_id,omitempty"` // account/team/user id; empty for global
	Priority      int        `json:"priority"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether the assignment has an expiry in the past
func (a *AIAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}
