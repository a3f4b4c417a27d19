package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"modelmux/internal/database"
	"modelmux/internal/logging"
	"modelmux/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// SessionService is the ephemeral per-session note store. Notes carry a
// fixed TTL stamped at append time; expired notes are invisible to every
// read path and physically removed by the recurring sweep.
type SessionService struct {
	mongo  *database.MongoDB // may be nil: notes are then in-memory only
	writer *PersistWriter    // may be nil

	ttl           time.Duration
	sweepInterval time.Duration

	mu    sync.Mutex
	notes map[string][]*models.SessionNote // session id -> notes in append order

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Summary composition bounds
const (
	summaryMaxContextNotes = 5
	summaryMaxErrorNotes   = 3
)

// NewSessionService creates the store. Call Start to begin the expiry sweep.
func NewSessionService(mongo *database.MongoDB, writer *PersistWriter, ttl, sweepInterval time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	return &SessionService{
		mongo:         mongo,
		writer:        writer,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		notes:         make(map[string][]*models.SessionNote),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Append stores a new note, stamping id, timestamp, and expiry.
// Note content is never mutated after this point.
func (s *SessionService) Append(note models.SessionNote) (*models.SessionNote, error) {
	if note.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if note.NoteType == "" {
		note.NoteType = models.NoteTypeContext
	}

	now := time.Now()
	note.ID = uuid.New().String()
	note.CreatedAt = now
	note.ExpiresAt = now.Add(s.ttl)

	stored := note

	s.mu.Lock()
	s.notes[note.SessionID] = append(s.notes[note.SessionID], &stored)
	s.mu.Unlock()

	s.persistNote(stored)
	return &note, nil
}

// ReadOptions filters Read results
type ReadOptions struct {
	NoteType string
	Limit    int
}

// Read returns a session's unexpired notes, newest first
func (s *SessionService) Read(sessionID string, opts ReadOptions) []models.SessionNote {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.notes[sessionID]
	result := make([]models.SessionNote, 0, len(stored))

	// Append order is chronological; walk backwards for newest-first.
	for i := len(stored) - 1; i >= 0; i-- {
		n := stored[i]
		if n.Expired(now) {
			continue
		}
		if opts.NoteType != "" && n.NoteType != opts.NoteType {
			continue
		}
		result = append(result, *n)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}

	return result
}

// BuildSummary composes a bounded textual summary for handoff: the most
// recent context notes, all preferences, and recent errors, in that order.
// Returns the empty string when the session has no unexpired notes.
func (s *SessionService) BuildSummary(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildSummaryLocked(sessionID, time.Now())
}

func (s *SessionService) buildSummaryLocked(sessionID string, now time.Time) string {
	stored := s.notes[sessionID]

	var contextNotes, preferenceNotes, errorNotes []*models.SessionNote
	for i := len(stored) - 1; i >= 0; i-- {
		n := stored[i]
		if n.Expired(now) {
			continue
		}
		switch n.NoteType {
		case models.NoteTypeContext:
			if len(contextNotes) < summaryMaxContextNotes {
				contextNotes = append(contextNotes, n)
			}
		case models.NoteTypePreference:
			preferenceNotes = append(preferenceNotes, n)
		case models.NoteTypeError:
			if len(errorNotes) < summaryMaxErrorNotes {
				errorNotes = append(errorNotes, n)
			}
		}
	}

	if len(contextNotes) == 0 && len(preferenceNotes) == 0 && len(errorNotes) == 0 {
		return ""
	}

	var b strings.Builder
	writeSection := func(header string, notes []*models.SessionNote) {
		if len(notes) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + header + "\n")
		for _, n := range notes {
			b.WriteString("- " + n.Content + "\n")
		}
	}

	writeSection("Recent Context", contextNotes)
	writeSection("Preferences", preferenceNotes)
	writeSection("Recent Errors", errorNotes)

	return b.String()
}

// AppendHandoffNote builds the session summary and, when non-empty, appends
// a handoff-typed note for the receiving agent. Both happen under one
// per-session critical section so a concurrent reader never observes the
// note before the notes the summary was built from.
func (s *SessionService) AppendHandoffNote(sessionID, toAgent, toModel string) string {
	now := time.Now()

	s.mu.Lock()
	summary := s.buildSummaryLocked(sessionID, now)
	if summary == "" {
		s.mu.Unlock()
		return ""
	}

	note := &models.SessionNote{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AgentID:   toAgent,
		ModelID:   toModel,
		NoteType:  models.NoteTypeHandoff,
		Content:   fmt.Sprintf("Context handoff to %s:\n%s", toAgent, summary),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.notes[sessionID] = append(s.notes[sessionID], note)
	s.mu.Unlock()

	s.persistNote(*note)
	return summary
}

// SessionCount returns the number of sessions currently indexed
func (s *SessionService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// NoteCount returns the number of notes currently indexed (including any
// expired notes not yet swept)
func (s *SessionService) NoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, notes := range s.notes {
		total += len(notes)
	}
	return total
}

// Start runs an initial sweep, then sweeps on the configured interval until Stop
func (s *SessionService) Start() {
	go func() {
		defer close(s.done)

		s.Sweep()

		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()

	log.Printf("🧹 [SESSION] Expiry sweep started (interval: %v, TTL: %v)", s.sweepInterval, s.ttl)
}

// Stop halts the sweep goroutine
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// Sweep removes expired notes from the index and the durable store.
// Sessions left with no notes are dropped entirely.
func (s *SessionService) Sweep() {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for sessionID, notes := range s.notes {
		kept := notes[:0]
		for _, n := range notes {
			if n.Expired(now) {
				removed++
				continue
			}
			kept = append(kept, n)
		}
		if len(kept) == 0 {
			delete(s.notes, sessionID)
		} else {
			s.notes[sessionID] = kept
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		log.Printf("🧹 [SESSION] Sweep removed %d expired notes", removed)
	}

	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := s.mongo.Collection(database.CollectionSessionNotes).
			DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
		if err != nil {
			slog.Debug("session note sweep delete failed", "error", err)
		} else if result.DeletedCount > 0 {
			log.Printf("🧹 [SESSION] Sweep purged %d expired notes from storage", result.DeletedCount)
		}
	}
}

// persistNote writes a note to the durable store, fire-and-forget
func (s *SessionService) persistNote(note models.SessionNote) {
	if s.mongo == nil {
		return
	}
	mongo := s.mongo
	write := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := mongo.Collection(database.CollectionSessionNotes).InsertOne(ctx, note)
		return err
	}

	if s.writer != nil {
		s.writer.Enqueue("insert session note "+note.ID, write)
		return
	}
	if err := write(); err != nil {
		logging.WithSession(slog.Default(), note.SessionID).Debug("session note persist failed", "note_id", note.ID, "error", err)
	}
}
