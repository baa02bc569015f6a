package history

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/choice"
)

// Backend is the slice of the backend API the loader reads from.
type Backend interface {
	ListSessions(ctx context.Context, contact support.Contact) ([]support.SessionRecord, error)
	History(ctx context.Context, sessionID string) ([]support.HistoryEntry, error)
}

// Loader retrieves session summaries and replays transcripts. Both
// operations are read-only and safe to retry.
type Loader struct {
	backend Backend
	parser  choice.Parser
	cache   SummaryCache
	newID   func() string
}

// Option customises a Loader.
type Option func(*Loader)

// WithCache enables the summary cache.
func WithCache(cache SummaryCache) Option {
	return func(l *Loader) {
		l.cache = cache
	}
}

// WithParser sets the parser used to strip directives from replayed replies.
func WithParser(p choice.Parser) Option {
	return func(l *Loader) {
		l.parser = p
	}
}

// WithIDGenerator overrides how replayed turn identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(l *Loader) {
		l.newID = newID
	}
}

// NewLoader returns a loader reading from backend.
func NewLoader(backend Backend, opts ...Option) *Loader {
	l := &Loader{
		backend: backend,
		parser:  choice.Default,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListSessions returns the prior sessions of contact. A contact without
// sessions yields an empty, non-nil slice.
func (l *Loader) ListSessions(ctx context.Context, contact support.Contact) ([]support.SessionSummary, error) {
	if l.cache != nil {
		cached, ok, err := l.cache.Get(ctx, contact)
		if err != nil {
			log.Printf("[cache] read failed for contact=%s: %v", contact, err)
		} else if ok {
			return cached, nil
		}
	}

	records, err := l.backend.ListSessions(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]support.SessionSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.Summary())
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, contact, summaries); err != nil {
			log.Printf("[cache] write failed for contact=%s: %v", contact, err)
		}
	}
	return summaries, nil
}

// Invalidate drops any cached summaries of contact.
func (l *Loader) Invalidate(ctx context.Context, contact support.Contact) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, contact); err != nil {
		log.Printf("[cache] invalidate failed for contact=%s: %v", contact, err)
	}
}

// LoadTranscript rebuilds the turns of sessionID. Every stored exchange
// becomes a user turn followed by an assistant turn with the same timestamp.
func (l *Loader) LoadTranscript(ctx context.Context, sessionID string) ([]support.Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("load transcript: %w", support.ErrNotFound)
	}

	entries, err := l.backend.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", sessionID, err)
	}
	if len(entries) == 0 {
		// The backend answers unknown identifiers with an empty list.
		return nil, fmt.Errorf("load transcript %s: %w", sessionID, support.ErrNotFound)
	}

	turns := make([]support.Turn, 0, len(entries)*2)
	for _, entry := range entries {
		at := entry.CreatedAt.Time
		turns = append(turns,
			support.Turn{
				ID:        l.newID(),
				Role:      support.RoleUser,
				Text:      entry.Message,
				Timestamp: at,
			},
			support.Turn{
				ID:                l.newID(),
				Role:              support.RoleAssistant,
				Text:              l.parser.Parse(entry.Response).Prose,
				Timestamp:         at,
				FromKnowledgeBase: entry.IsFromKB,
			},
		)
	}

	log.Printf("[history] replayed session=%s exchanges=%d", sessionID, len(entries))
	return turns, nil
}
