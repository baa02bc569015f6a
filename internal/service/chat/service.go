package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/support-desk/client/internal/service/choice"
	"github.com/zhouzirui/support-desk/client/internal/service/dispatch"
	"github.com/zhouzirui/support-desk/client/internal/service/history"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrContactRequired   = errors.New("contact is required")
	ErrSuperseded        = errors.New("history load superseded")
)

// Backend is everything a workspace needs from the support backend.
type Backend interface {
	dispatch.Backend
	history.Backend
}

// Option customises the workspaces a Service creates.
type Option func(*settings)

type settings struct {
	parser  choice.Parser
	timeout time.Duration
	cache   history.SummaryCache
}

// WithParser sets the choice protocol parser.
func WithParser(p choice.Parser) Option {
	return func(s *settings) {
		s.parser = p
	}
}

// WithTimeout bounds each chat exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithSummaryCache enables caching of session summaries.
func WithSummaryCache(cache history.SummaryCache) Option {
	return func(s *settings) {
		s.cache = cache
	}
}

// Service keeps the workspaces of every connected display client.
type Service struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	backend    Backend
	loader     *history.Loader
	settings   settings
}

// NewService returns a registry whose workspaces talk to backend.
func NewService(backend Backend, opts ...Option) *Service {
	s := settings{parser: choice.Default}
	for _, opt := range opts {
		opt(&s)
	}

	loaderOpts := []history.Option{history.WithParser(s.parser)}
	if s.cache != nil {
		loaderOpts = append(loaderOpts, history.WithCache(s.cache))
	}

	return &Service{
		workspaces: make(map[string]*Workspace),
		backend:    backend,
		loader:     history.NewLoader(backend, loaderOpts...),
		settings:   s,
	}
}

// CreateWorkspace provisions an empty workspace awaiting a contact.
func (s *Service) CreateWorkspace(_ context.Context) (*Workspace, error) {
	ws := s.NewWorkspace(uuid.NewString())

	s.mu.Lock()
	s.workspaces[ws.ID()] = ws
	s.mu.Unlock()

	return ws, nil
}

// NewWorkspace returns a workspace that is not tracked by the registry.
func (s *Service) NewWorkspace(id string) *Workspace {
	return newWorkspace(id, s.backend, s.loader, s.settings)
}

// GetWorkspace retrieves a workspace by identifier.
func (s *Service) GetWorkspace(_ context.Context, id string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.workspaces[id]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	return ws, nil
}

// DeleteWorkspace discards a workspace and its conversation.
func (s *Service) DeleteWorkspace(_ context.Context, id string) error {
	s.mu.Lock()
	ws, ok := s.workspaces[id]
	delete(s.workspaces, id)
	s.mu.Unlock()

	if !ok {
		return ErrWorkspaceNotFound
	}
	ws.close()
	return nil
}

// Count returns the number of tracked workspaces.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}
