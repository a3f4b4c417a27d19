package services

import (
	"strings"
	"testing"
	"time"

	"modelmux/internal/models"
)

func newTestSessions(ttl time.Duration) *SessionService {
	return NewSessionService(nil, nil, ttl, time.Hour)
}

func appendNote(t *testing.T, s *SessionService, sessionID, noteType, content string) {
	t.Helper()
	if _, err := s.Append(models.SessionNote{
		SessionID: sessionID,
		NoteType:  noteType,
		Content:   content,
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestSessionAppendAndRead(t *testing.T) {
	sessions := newTestSessions(time.Hour)

	appendNote(t, sessions, "s1", models.NoteTypeContext, "first")
	appendNote(t, sessions, "s1", models.NoteTypeContext, "second")
	appendNote(t, sessions, "s1", models.NoteTypePreference, "prefers brief answers")

	notes := sessions.Read("s1", ReadOptions{})
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	// Newest first
	if notes[0].Content != "prefers brief answers" || notes[2].Content != "first" {
		t.Errorf("notes not newest-first: %s ... %s", notes[0].Content, notes[2].Content)
	}

	contextOnly := sessions.Read("s1", ReadOptions{NoteType: models.NoteTypeContext})
	if len(contextOnly) != 2 {
		t.Errorf("type filter: expected 2 context notes, got %d", len(contextOnly))
	}

	limited := sessions.Read("s1", ReadOptions{Limit: 1})
	if len(limited) != 1 || limited[0].Content != "prefers brief answers" {
		t.Errorf("limit should return only the newest note")
	}

	if got := sessions.Read("unknown-session", ReadOptions{}); len(got) != 0 {
		t.Errorf("unknown session should read empty, got %d", len(got))
	}
}

func TestSessionNoteRequiresSessionID(t *testing.T) {
	sessions := newTestSessions(time.Hour)
	if _, err := sessions.Append(models.SessionNote{Content: "orphan"}); err == nil {
		t.Error("note without session id should be rejected")
	}
}

func TestSessionTTLExpiry(t *testing.T) {
	sessions := newTestSessions(40 * time.Millisecond)

	appendNote(t, sessions, "s1", models.NoteTypeContext, "short-lived")

	// Before expiry the note is visible everywhere
	if len(sessions.Read("s1", ReadOptions{})) != 1 {
		t.Fatal("note should be readable before expiry")
	}
	if !strings.Contains(sessions.BuildSummary("s1"), "short-lived") {
		t.Fatal("note should appear in summary before expiry")
	}

	time.Sleep(60 * time.Millisecond)

	// After expiry the note is invisible even before any sweep runs
	if len(sessions.Read("s1", ReadOptions{})) != 0 {
		t.Error("expired note still readable")
	}
	if sessions.BuildSummary("s1") != "" {
		t.Error("expired note still contributes to summary")
	}

	// Sweep physically removes it and drops the empty session
	if sessions.NoteCount() != 1 {
		t.Fatalf("expected 1 indexed note pre-sweep, got %d", sessions.NoteCount())
	}
	sessions.Sweep()
	if sessions.NoteCount() != 0 {
		t.Error("sweep did not remove expired note")
	}
	if sessions.SessionCount() != 0 {
		t.Error("sweep did not drop the emptied session")
	}
}

func TestSessionSweepKeepsLiveNotes(t *testing.T) {
	sessions := newTestSessions(time.Hour)

	appendNote(t, sessions, "s1", models.NoteTypeContext, "alive")
	sessions.Sweep()

	if sessions.NoteCount() != 1 || sessions.SessionCount() != 1 {
		t.Error("sweep removed an unexpired note")
	}
}

func TestSessionSummaryComposition(t *testing.T) {
	sessions := newTestSessions(time.Hour)

	// More context notes than the summary keeps
	for _, content := range []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"} {
		appendNote(t, sessions, "s1", models.NoteTypeContext, content)
	}
	appendNote(t, sessions, "s1", models.NoteTypePreference, "terse replies")
	appendNote(t, sessions, "s1", models.NoteTypeError, "e1")
	appendNote(t, sessions, "s1", models.NoteTypeError, "e2")
	appendNote(t, sessions, "s1", models.NoteTypeError, "e3")
	appendNote(t, sessions, "s1", models.NoteTypeError, "e4")

	summary := sessions.BuildSummary("s1")

	for _, header := range []string{"## Recent Context", "## Preferences", "## Recent Errors"} {
		if !strings.Contains(summary, header) {
			t.Errorf("summary missing section %q", header)
		}
	}

	// Only the 5 most recent context notes survive
	if strings.Contains(summary, "c1") || strings.Contains(summary, "c2") {
		t.Error("summary should drop the oldest context notes")
	}
	for _, want := range []string{"c3", "c4", "c5", "c6", "c7"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing recent context note %s", want)
		}
	}

	// Only the 3 most recent errors survive
	if strings.Contains(summary, "- e1\n") {
		t.Error("summary should drop the oldest error note")
	}
	for _, want := range []string{"e2", "e3", "e4"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing error note %s", want)
		}
	}

	if !strings.Contains(summary, "terse replies") {
		t.Error("summary missing preference note")
	}
}

func TestSessionSummaryEmptyWhenNoNotes(t *testing.T) {
	sessions := newTestSessions(time.Hour)

	if sessions.BuildSummary("never-seen") != "" {
		t.Error("summary for unknown session should be empty")
	}

	// Handoff-typed notes alone do not produce a summary
	sessions.AppendHandoffNote("never-seen", "agent", "model")
	if sessions.BuildSummary("never-seen") != "" {
		t.Error("empty session should stay summary-less after a no-op handoff")
	}
}

func TestSessionAppendHandoffNote(t *testing.T) {
	sessions := newTestSessions(time.Hour)

	appendNote(t, sessions, "s1", models.NoteTypeContext, "user asked about pricing")

	summary := sessions.AppendHandoffNote("s1", "anthropic", "claude-sonnet-4")
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}

	notes := sessions.Read("s1", ReadOptions{NoteType: models.NoteTypeHandoff})
	if len(notes) != 1 {
		t.Fatalf("expected 1 handoff note, got %d", len(notes))
	}
	if !strings.Contains(notes[0].Content, "Context handoff to anthropic") {
		t.Errorf("handoff note missing receiver: %q", notes[0].Content)
	}
	if !strings.Contains(notes[0].Content, "user asked about pricing") {
		t.Errorf("handoff note missing summarized context: %q", notes[0].Content)
	}
	if notes[0].AgentID != "anthropic" || notes[0].ModelID != "claude-sonnet-4" {
		t.Errorf("handoff note missing receiving agent/model: %+v", notes[0])
	}
}
