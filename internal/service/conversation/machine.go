package conversation

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
)

var (
	ErrBusy          = errors.New("an exchange is already in flight")
	ErrTerminal      = errors.New("conversation has ended")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotAwaiting   = errors.New("no exchange is awaiting a reply")
	ErrStaleExchange = errors.New("exchange was superseded")
)

// State is the exchange state of a conversation.
type State int

const (
	Idle State = iota
	AwaitingReply
)

func (s State) String() string {
	if s == AwaitingReply {
		return "awaiting_reply"
	}
	return "idle"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "awaiting_reply":
		*s = AwaitingReply
	default:
		return fmt.Errorf("unknown conversation state %q", text)
	}
	return nil
}

// Exchange identifies one submitted user turn awaiting its reply.
type Exchange struct {
	Turn      support.Turn
	SessionID string
	epoch     uint64
}

// Reply is a parsed backend answer ready to be recorded.
type Reply struct {
	SessionID         string
	Prose             string
	Directives        []support.ChoiceDirective
	FromKnowledgeBase bool
	TicketCreated     bool
	TicketID          *int
	ChatEnded         bool
}

// Snapshot is a copy of the machine state safe to hand to other goroutines.
type Snapshot struct {
	support.ConversationSession
	State State                     `json:"state"`
	Offer []support.ChoiceDirective `json:"offer,omitempty"`
	// Version increases with every change. Listeners run outside the
	// machine's lock and may observe snapshots out of order; a snapshot
	// with a lower Version than one already seen is stale.
	Version uint64 `json:"version"`
}

// Machine is the single owner of a conversation's turn history.
type Machine struct {
	mu        sync.Mutex
	session   support.ConversationSession
	state     State
	offer     []support.ChoiceDirective
	epoch     uint64
	version   uint64
	now       func() time.Time
	newID     func() string
	listeners map[uint64]func(Snapshot)
	nextSub   uint64
}

// Option customises a Machine.
type Option func(*Machine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithIDGenerator overrides how turn identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) {
		m.newID = newID
	}
}

// New returns an empty conversation in the Idle state.
func New(opts ...Option) *Machine {
	m := &Machine{
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		listeners: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.session.Turns = make([]support.Turn, 0, 16)
	return m
}

// Resume returns a conversation pre-populated with a replayed transcript.
func Resume(sessionID string, turns []support.Turn, opts ...Option) *Machine {
	m := New(opts...)
	m.session.SessionID = sessionID
	m.session.Turns = append(m.session.Turns, turns...)
	return m
}

// Submit appends the user's turn and starts an exchange.
func (m *Machine) Submit(text string) (Exchange, error) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	switch {
	case m.session.Terminal:
		m.mu.Unlock()
		return Exchange{}, ErrTerminal
	case m.state == AwaitingReply:
		m.mu.Unlock()
		return Exchange{}, ErrBusy
	case text == "":
		m.mu.Unlock()
		return Exchange{}, ErrEmptyMessage
	}

	turn := support.Turn{
		ID:        m.newID(),
		Role:      support.RoleUser,
		Text:      text,
		Timestamp: m.now(),
	}
	m.session.Turns = append(m.session.Turns, turn)
	m.state = AwaitingReply
	m.offer = nil
	m.epoch++
	exchange := Exchange{Turn: turn, SessionID: m.session.SessionID, epoch: m.epoch}
	snap := m.changedLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners, snap)
	return exchange, nil
}

// OnReplyReceived records the assistant's answer to exchange.
func (m *Machine) OnReplyReceived(exchange Exchange, reply Reply) (support.Turn, error) {
	m.mu.Lock()
	if err := m.checkExchangeLocked(exchange); err != nil {
		m.mu.Unlock()
		return support.Turn{}, err
	}

	turn := support.Turn{
		ID:                m.newID(),
		Role:              support.RoleAssistant,
		Text:              reply.Prose,
		Timestamp:         m.now(),
		FromKnowledgeBase: reply.FromKnowledgeBase,
		TicketCreated:     reply.TicketCreated,
	}
	if reply.TicketCreated && reply.TicketID != nil {
		id := *reply.TicketID
		turn.TicketID = &id
	}

	if m.session.SessionID == "" {
		m.session.SessionID = reply.SessionID
	}
	m.session.Turns = append(m.session.Turns, turn)
	m.state = Idle

	if reply.TicketCreated || reply.ChatEnded {
		m.session.Terminal = true
		m.offer = nil
	} else {
		m.offer = append([]support.ChoiceDirective(nil), reply.Directives...)
	}

	snap := m.changedLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners, snap)
	return turn, nil
}

// OnReplyFailed records a generic failure notice for exchange. The error
// detail is deliberately not part of the turn.
func (m *Machine) OnReplyFailed(exchange Exchange, kind support.ErrorKind) (support.Turn, error) {
	m.mu.Lock()
	if err := m.checkExchangeLocked(exchange); err != nil {
		m.mu.Unlock()
		return support.Turn{}, err
	}

	turn := support.Turn{
		ID:        m.newID(),
		Role:      support.RoleAssistant,
		Text:      support.FailureNotice,
		Timestamp: m.now(),
	}
	m.session.Turns = append(m.session.Turns, turn)
	m.state = Idle

	snap := m.changedLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	log.Printf("[conversation] exchange failed: session=%s kind=%s", logSessionID(snap.SessionID), kind)
	notify(listeners, snap)
	return turn, nil
}

// Reset discards the conversation. Any outstanding exchange becomes stale.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.session = support.ConversationSession{Turns: make([]support.Turn, 0, 16)}
	m.state = Idle
	m.offer = nil
	m.epoch++
	snap := m.changedLocked()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	notify(listeners, snap)
}

// TakeDirective consumes the offered directive matching action. Each offer
// can be taken at most once.
func (m *Machine) TakeDirective(action string) (support.ChoiceDirective, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Terminal || m.state != Idle {
		return support.ChoiceDirective{}, false
	}
	for _, directive := range m.offer {
		if directive.Action == action {
			m.offer = nil
			m.version++
			return directive, true
		}
	}
	return support.ChoiceDirective{}, false
}

// Snapshot returns a copy of the current conversation.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SessionID returns the backend session identifier, empty until assigned.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.SessionID
}

// State returns the exchange state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Terminal reports whether the conversation has ended.
func (m *Machine) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Terminal
}

// Offer returns the directives currently available to the user.
func (m *Machine) Offer() []support.ChoiceDirective {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]support.ChoiceDirective(nil), m.offer...)
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Machine) checkExchangeLocked(exchange Exchange) error {
	if exchange.epoch != m.epoch {
		return ErrStaleExchange
	}
	if m.state != AwaitingReply {
		return ErrNotAwaiting
	}
	return nil
}

func (m *Machine) snapshotLocked() Snapshot {
	turns := make([]support.Turn, len(m.session.Turns))
	copy(turns, m.session.Turns)
	return Snapshot{
		ConversationSession: support.ConversationSession{
			SessionID: m.session.SessionID,
			Turns:     turns,
			Terminal:  m.session.Terminal,
		},
		State:   m.state,
		Offer:   append([]support.ChoiceDirective(nil), m.offer...),
		Version: m.version,
	}
}

// changedLocked records a change and returns the snapshot to publish.
func (m *Machine) changedLocked() Snapshot {
	m.version++
	return m.snapshotLocked()
}

func (m *Machine) listenersLocked() []func(Snapshot) {
	if len(m.listeners) == 0 {
		return nil
	}
	out := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		out = append(out, fn)
	}
	return out
}

func logSessionID(id string) string {
	if id == "" {
		return "(unassigned)"
	}
	return id
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
