package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"modelmux/internal/models"
)

func TestHandoffContinuityScenario(t *testing.T) {
	sessions := newTestSessions(time.Hour)
	handoffs := NewHandoffService(sessions)

	appendNote(t, sessions, "s1", models.NoteTypeContext, "debugging a nil pointer panic")
	appendNote(t, sessions, "s1", models.NoteTypeContext, "panic is in the config loader")
	appendNote(t, sessions, "s1", models.NoteTypeContext, "user suspects a race on startup")

	handoff, err := handoffs.Handoff("openai", "gpt-4o", "anthropic", "claude-sonnet-4", "code task escalation", true, "s1")
	if err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}

	if !handoff.Seamless {
		t.Error("handoff with preserved context should be seamless")
	}
	for _, want := range []string{"nil pointer panic", "config loader", "race on startup"} {
		if !strings.Contains(handoff.ContextSummary, want) {
			t.Errorf("context summary missing %q", want)
		}
	}

	// The receiving agent finds the full context in the session
	notes := sessions.Read("s1", ReadOptions{NoteType: models.NoteTypeHandoff})
	if len(notes) != 1 {
		t.Fatalf("expected 1 handoff note, got %d", len(notes))
	}
	for _, want := range []string{"nil pointer panic", "config loader", "race on startup"} {
		if !strings.Contains(notes[0].Content, want) {
			t.Errorf("handoff note missing %q", want)
		}
	}

	stats := handoffs.GetStats()
	if stats.TotalHandoffs != 1 || stats.SeamlessHandoffs != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ByToAgent["anthropic"] != 1 {
		t.Errorf("per-agent count missing: %+v", stats.ByToAgent)
	}
	if stats.LastHandoffAt == nil {
		t.Error("expected last handoff timestamp")
	}
}

func TestHandoffWithoutContext(t *testing.T) {
	handoffs := NewHandoffService(nil)

	handoff, err := handoffs.Handoff("openai", "gpt-4o", "groq", "llama-3.3-70b", "latency", false, "")
	if err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}
	if handoff.Seamless {
		t.Error("handoff without context should not be seamless")
	}
	if handoff.ContextSummary != "" {
		t.Error("expected empty context summary")
	}
}

func TestHandoffRequiresReceiver(t *testing.T) {
	handoffs := NewHandoffService(nil)

	if _, err := handoffs.Handoff("openai", "gpt-4o", "", "", "nowhere to go", false, ""); err == nil {
		t.Error("handoff without a receiver should be rejected")
	}
}

func TestHandoffHistoryCap(t *testing.T) {
	handoffs := NewHandoffService(nil)

	total := handoffHistoryCap + 25
	for i := 0; i < total; i++ {
		if _, err := handoffs.Handoff("a", "m1", fmt.Sprintf("agent-%d", i), "m2", "load", false, ""); err != nil {
			t.Fatalf("Handoff %d failed: %v", i, err)
		}
	}

	history := handoffs.GetHistory(0)
	if len(history) != handoffHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", handoffHistoryCap, len(history))
	}
	// Newest first; oldest retained entry is total-cap
	if history[0].ToAgent != fmt.Sprintf("agent-%d", total-1) {
		t.Errorf("newest entry wrong: %s", history[0].ToAgent)
	}
	if history[len(history)-1].ToAgent != fmt.Sprintf("agent-%d", total-handoffHistoryCap) {
		t.Errorf("oldest retained entry wrong: %s", history[len(history)-1].ToAgent)
	}

	// Stats count everything, including evicted entries
	if got := handoffs.GetStats().TotalHandoffs; got != total {
		t.Errorf("expected %d total handoffs, got %d", total, got)
	}
}

func TestHandoffListeners(t *testing.T) {
	handoffs := NewHandoffService(nil)

	var received []models.AgentHandoff
	id := handoffs.Subscribe(func(h models.AgentHandoff) {
		received = append(received, h)
	})

	if _, err := handoffs.Handoff("a", "m1", "b", "m2", "test", false, ""); err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}
	if len(received) != 1 || received[0].ToAgent != "b" {
		t.Fatalf("listener not invoked: %+v", received)
	}

	handoffs.Unsubscribe(id)
	if _, err := handoffs.Handoff("a", "m1", "c", "m2", "test", false, ""); err != nil {
		t.Fatalf("Handoff failed: %v", err)
	}
	if len(received) != 1 {
		t.Error("unsubscribed listener still invoked")
	}
}

func TestHandoffHistoryLimit(t *testing.T) {
	handoffs := NewHandoffService(nil)
	for i := 0; i < 5; i++ {
		if _, err := handoffs.Handoff("a", "m1", "b", "m2", "test", false, ""); err != nil {
			t.Fatalf("Handoff failed: %v", err)
		}
	}

	if got := len(handoffs.GetHistory(3)); got != 3 {
		t.Errorf("expected 3 entries, got %d", got)
	}
	if got := len(handoffs.GetHistory(100)); got != 5 {
		t.Errorf("expected all 5 entries, got %d", got)
	}
}
