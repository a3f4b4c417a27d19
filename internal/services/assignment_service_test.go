package services

import (
	"errors"
	"testing"
	"time"

	"modelmux/internal/models"
)

var superadmin = models.Actor{UserID: "root", Role: models.RoleSuperadmin}

func newTestAssignments() *AssignmentService {
	return NewAssignmentService(newTestRegistry(), nil, nil)
}

func TestAssignmentSpecificityOrdering(t *testing.T) {
	actor := models.Actor{
		UserID:    "user-1",
		TeamID:    "team-1",
		AccountID: "acct-1",
		Role:      models.RoleUser,
	}

	// Insert in every order; the user-level assignment must always win
	orders := [][]string{
		{models.LevelGlobal, models.LevelCompany, models.LevelTeam, models.LevelUser},
		{models.LevelUser, models.LevelTeam, models.LevelCompany, models.LevelGlobal},
		{models.LevelTeam, models.LevelGlobal, models.LevelUser, models.LevelCompany},
	}

	modelForLevel := map[string]string{
		models.LevelGlobal:  "gpt-4o-mini",
		models.LevelCompany: "gpt-4o",
		models.LevelTeam:    "llama-3.3-70b",
		models.LevelUser:    "claude-sonnet-4",
	}

	for _, order := range orders {
		assignments := newTestAssignments()
		for _, level := range order {
			if _, err := assignments.SetAssignment("chat", models.AIAssignment{
				PrimaryModel: modelForLevel[level],
				Level:        level,
				ScopeOwnerID: scopeOwnerFor(level, actor),
			}, superadmin); err != nil {
				t.Fatalf("SetAssignment(%s) failed: %v", level, err)
			}
		}

		got := assignments.GetAssignment("chat", actor)
		if got == nil || got.Level != models.LevelUser {
			t.Fatalf("insertion order %v: expected user-level assignment to win, got %+v", order, got)
		}
		if got.PrimaryModel != "claude-sonnet-4" {
			t.Errorf("insertion order %v: wrong model %s", order, got.PrimaryModel)
		}
	}
}

func TestAssignmentLevelApplicability(t *testing.T) {
	assignments := newTestAssignments()

	if _, err := assignments.SetAssignment("chat", models.AIAssignment{
		PrimaryModel: "claude-sonnet-4",
		Level:        models.LevelTeam,
		ScopeOwnerID: "team-1",
	}, superadmin); err != nil {
		t.Fatalf("SetAssignment failed: %v", err)
	}

	// A caller with no team context never sees team-level assignments
	solo := models.Actor{UserID: "user-2", Role: models.RoleUser}
	got := assignments.GetAssignment("chat", solo)
	if got != nil && got.Level == models.LevelTeam {
		t.Errorf("team assignment applied to caller without a team: %+v", got)
	}
}

func TestAssignmentPriorityTieBreak(t *testing.T) {
	assignments := newTestAssignments()
	actor := models.Actor{UserID: "u1", TeamID: "team-a", Role: models.RoleUser}

	// Two team-level assignments apply via different scope owners;
	// higher priority must win, deterministically.
	if _, err := assignments.SetAssignment("chat", models.AIAssignment{
		PrimaryModel: "gpt-4o",
		Level:        models.LevelTeam,
		ScopeOwnerID: "team-a",
		Priority:     1,
	}, superadmin); err != nil {
		t.Fatalf("SetAssignment failed: %v", err)
	}
	if _, err := assignments.SetAssignment("chat", models.AIAssignment{
		PrimaryModel: "claude-sonnet-4",
		Level:        models.LevelTeam,
		ScopeOwnerID: "team-a-overlay",
		Priority:     5,
	}, superadmin); err != nil {
		t.Fatalf("SetAssignment failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		got := assignments.GetAssignment("chat", actor)
		if got == nil || got.PrimaryModel != "claude-sonnet-4" {
			t.Fatalf("iteration %d: expected priority 5 assignment, got %+v", i, got)
		}
	}
}

func TestAssignmentPermissionGate(t *testing.T) {
	tests := []struct {
		role    string
		level   string
		allowed bool
	}{
		{models.RoleGuest, models.LevelUser, false},
		{models.RoleUser, models.LevelUser, true},
		{models.RoleUser, models.LevelTeam, false},
		{models.RoleTeamAdmin, models.LevelTeam, true},
		{models.RoleTeamAdmin, models.LevelCompany, false},
		{models.RoleOrgAdmin, models.LevelCompany, true},
		{models.RoleOrgAdmin, models.LevelGlobal, false},
		{models.RoleSuperadmin, models.LevelGlobal, true},
	}

	for _, tt := range tests {
		t.Run(tt.role+"_"+tt.level, func(t *testing.T) {
			assignments := newTestAssignments()
			actor := models.Actor{
				UserID:    "actor-1",
				TeamID:    "team-1",
				AccountID: "acct-1",
				Role:      tt.role,
			}

			_, err := assignments.SetAssignment("chat", models.AIAssignment{
				PrimaryModel: "gpt-4o",
				Level:        tt.level,
			}, actor)

			if tt.allowed && err != nil {
				t.Errorf("expected %s to write %s-level, got %v", tt.role, tt.level, err)
			}
			if !tt.allowed {
				var permErr *PermissionError
				if !errors.As(err, &permErr) {
					t.Errorf("expected PermissionError, got %v", err)
				}
				// Rejected writes mutate nothing
				if len(assignments.GetAllAssignments()) != 0 {
					t.Error("rejected write left state behind")
				}
			}
		})
	}
}

func TestAssignmentRejectsUnknownModel(t *testing.T) {
	assignments := newTestAssignments()

	_, err := assignments.SetAssignment("chat", models.AIAssignment{
		PrimaryModel: "model-that-does-not-exist",
		Level:        models.LevelGlobal,
	}, superadmin)
	if err == nil {
		t.Fatal("assignment with unknown primary model should be rejected")
	}
	if len(assignments.GetAllAssignments()) != 0 {
		t.Error("rejected write left state behind")
	}
}

func TestAssignmentExpiry(t *testing.T) {
	assignments := newTestAssignments()
	actor := models.Actor{UserID: "u1", Role: models.RoleUser}

	past := time.Now().Add(-time.Minute)
	if _, err := assignments.SetAssignment("chat", models.AIAssignment{
		PrimaryModel: "gpt-4o",
		Level:        models.LevelUser,
		ScopeOwnerID: "u1",
		ExpiresAt:    &past,
	}, superadmin); err != nil {
		t.Fatalf("SetAssignment failed: %v", err)
	}

	// Expired assignment is skipped; built-in global default takes over
	got := assignments.GetAssignment("chat", actor)
	if got == nil {
		t.Fatal("expected built-in default, got nil")
	}
	if got.Level != models.LevelGlobal || got.PrimaryModel != "gpt-4o-mini" {
		t.Errorf("expected built-in chat default, got %+v", got)
	}
}

func TestAssignmentBuiltinDefaults(t *testing.T) {
	assignments := newTestAssignments()
	actor := models.Actor{UserID: "u1", Role: models.RoleUser}

	got := assignments.GetAssignment("code_generation", actor)
	if got == nil || got.PrimaryModel != "claude-sonnet-4" {
		t.Errorf("expected built-in code_generation default, got %+v", got)
	}

	if assignments.GetAssignment("unknown_task_type", actor) != nil {
		t.Error("unknown task type should resolve to nil")
	}
}

func TestAssignmentDelete(t *testing.T) {
	assignments := newTestAssignments()

	if _, err := assignments.SetAssignment("summarization", models.AIAssignment{
		PrimaryModel: "gpt-4o",
		Level:        models.LevelGlobal,
	}, superadmin); err != nil {
		t.Fatalf("SetAssignment failed: %v", err)
	}

	// Below-rank delete is rejected
	err := assignments.DeleteAssignment("summarization", models.LevelGlobal, "", models.Actor{Role: models.RoleOrgAdmin})
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	if err := assignments.DeleteAssignment("summarization", models.LevelGlobal, "", superadmin); err != nil {
		t.Fatalf("DeleteAssignment failed: %v", err)
	}

	// Resolution falls back to the built-in default afterwards
	got := assignments.GetAssignment("summarization", models.Actor{UserID: "u1", Role: models.RoleUser})
	if got == nil || got.PrimaryModel != "gpt-4o-mini" {
		t.Errorf("expected built-in default after delete, got %+v", got)
	}
}
