package models

import (
	"testing"
	"time"
)

func TestRoleRank(t *testing.T) {
	if RoleRank(RoleGuest) != 0 || RoleRank(RoleSuperadmin) != 4 {
		t.Error("role rank endpoints wrong")
	}
	if RoleRank("made-up-role") != 0 {
		t.Error("unknown roles must rank as guest")
	}
	if RoleRank(RoleTeamAdmin) <= RoleRank(RoleUser) {
		t.Error("team_admin must outrank user")
	}
}

func TestLevelSpecificityOrdering(t *testing.T) {
	levels := []string{LevelGlobal, LevelCompany, LevelTeam, LevelUser}
	for i := 1; i < len(levels); i++ {
		if LevelSpecificity(levels[i]) <= LevelSpecificity(levels[i-1]) {
			t.Errorf("%s must be more specific than %s", levels[i], levels[i-1])
		}
	}
}

func TestMinRankForLevel(t *testing.T) {
	if MinRankForLevel(LevelUser) != RoleRank(RoleUser) {
		t.Error("user level should require user rank")
	}
	if MinRankForLevel(LevelGlobal) != RoleRank(RoleSuperadmin) {
		t.Error("global level should require superadmin rank")
	}
	if MinRankForLevel("bogus") != RoleRank(RoleSuperadmin) {
		t.Error("unknown levels must require the top rank")
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{LevelUser, LevelTeam, LevelCompany, LevelGlobal} {
		if !ValidLevel(level) {
			t.Errorf("%s should be valid", level)
		}
	}
	if ValidLevel("org") {
		t.Error("org is not a hierarchy level")
	}
}

func TestAssignmentExpired(t *testing.T) {
	now := time.Now()

	var noExpiry AIAssignment
	if noExpiry.Expired(now) {
		t.Error("assignment without expiry never expires")
	}

	past := now.Add(-time.Second)
	expired := AIAssignment{ExpiresAt: &past}
	if !expired.Expired(now) {
		t.Error("past expiry should be expired")
	}

	future := now.Add(time.Hour)
	live := AIAssignment{ExpiresAt: &future}
	if live.Expired(now) {
		t.Error("future expiry should not be expired")
	}
}

func TestSessionNoteExpired(t *testing.T) {
	now := time.Now()

	note := SessionNote{ExpiresAt: now.Add(time.Millisecond)}
	if note.Expired(now) {
		t.Error("note should be live just before its expiry")
	}

	note.ExpiresAt = now
	if !note.Expired(now) {
		t.Error("note expires exactly at its deadline")
	}

	note.ExpiresAt = now.Add(-time.Millisecond)
	if !note.Expired(now) {
		t.Error("note past its deadline should be expired")
	}
}
