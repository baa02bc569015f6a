package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
	"github.com/zhouzirui/support-desk/client/internal/service/dispatch"
	"github.com/zhouzirui/support-desk/client/internal/service/history"
	"github.com/zhouzirui/support-desk/client/internal/service/identity"
)

// invalidateTimeout bounds the cache eviction that runs inside the first
// reply of a conversation.
const invalidateTimeout = time.Second

// View is what the display layer renders for a workspace.
type View struct {
	Contact support.Contact `json:"contact,omitempty"`
	conversation.Snapshot
}

// Workspace binds one user's contact to their active conversation. The
// conversation is replaced, never shared, when the contact or the resumed
// session changes.
type Workspace struct {
	id       string
	backend  dispatch.Backend
	loader   *history.Loader
	settings settings

	// emitMu serialises delivery to listeners so they see views in the
	// order they were produced. It is taken before mu, never while holding it.
	emitMu sync.Mutex

	mu          sync.Mutex
	contact     support.Contact
	machine     *conversation.Machine
	dispatcher  *dispatch.Dispatcher
	unsubscribe func()
	published   uint64
	generation  uint64
	listeners   map[uint64]func(View)
	nextSub     uint64
}

func newWorkspace(id string, backend dispatch.Backend, loader *history.Loader, s settings) *Workspace {
	return &Workspace{
		id:        id,
		backend:   backend,
		loader:    loader,
		settings:  s,
		listeners: make(map[uint64]func(View)),
	}
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string {
	return w.id
}

// Contact returns the accepted contact, empty until one is set.
func (w *Workspace) Contact() support.Contact {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.contact
}

// SetContact validates raw, starts a fresh conversation for it and returns
// the contact's prior sessions. A listing failure leaves the contact
// accepted so the user can still start a new conversation.
func (w *Workspace) SetContact(ctx context.Context, raw string) ([]support.SessionSummary, error) {
	contact, err := identity.Resolve(raw)
	if err != nil {
		return nil, err
	}

	w.emitMu.Lock()
	w.mu.Lock()
	w.contact = contact
	w.generation++
	view, listeners := w.replaceLocked(conversation.New())
	w.mu.Unlock()
	emit(listeners, view)
	w.emitMu.Unlock()

	log.Printf("[workspace] %s contact set to %s", w.id, contact)
	return w.loader.ListSessions(ctx, contact)
}

// Sessions lists the prior sessions of the current contact.
func (w *Workspace) Sessions(ctx context.Context) ([]support.SessionSummary, error) {
	contact := w.Contact()
	if contact.IsZero() {
		return nil, ErrContactRequired
	}
	return w.loader.ListSessions(ctx, contact)
}

// Resume replaces the conversation with the replayed transcript of
// sessionID. The transcript is applied only if nothing else replaced the
// conversation while it was loading.
func (w *Workspace) Resume(ctx context.Context, sessionID string) (View, error) {
	w.mu.Lock()
	if w.contact.IsZero() {
		w.mu.Unlock()
		return View{}, ErrContactRequired
	}
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	turns, err := w.loader.LoadTranscript(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if gen != w.generation {
		w.mu.Unlock()
		return View{}, fmt.Errorf("resume %s: %w", sessionID, ErrSuperseded)
	}
	view, listeners := w.replaceLocked(conversation.Resume(sessionID, turns))
	w.mu.Unlock()
	emit(listeners, view)

	return view, nil
}

// Reset clears the conversation. It serves both "clear" and "new session"
// requests and discards any history load still in flight.
func (w *Workspace) Reset() View {
	w.mu.Lock()
	w.generation++
	machine := w.machine
	w.mu.Unlock()

	if machine != nil {
		machine.Reset()
	}
	return w.View()
}

// Send dispatches text in the current conversation.
func (w *Workspace) Send(ctx context.Context, text string) (dispatch.Outcome, error) {
	d, err := w.currentDispatcher()
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return d.Send(ctx, text), nil
}

// Choose activates an offered directive.
func (w *Workspace) Choose(ctx context.Context, action string) (dispatch.Outcome, error) {
	d, err := w.currentDispatcher()
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return d.Activate(ctx, action), nil
}

// View returns the current contact and conversation snapshot.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// Subscribe registers fn to receive the view after every change.
func (w *Workspace) Subscribe(fn func(View)) func() {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

func (w *Workspace) currentDispatcher() (*dispatch.Dispatcher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dispatcher == nil {
		return nil, ErrContactRequired
	}
	return w.dispatcher, nil
}

func (w *Workspace) replaceLocked(machine *conversation.Machine) (View, []func(View)) {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}

	contact := w.contact
	w.machine = machine
	w.dispatcher = dispatch.New(w.backend, machine, contact,
		dispatch.WithParser(w.settings.parser),
		dispatch.WithTimeout(w.settings.timeout),
		dispatch.WithSessionAssigned(func(string) {
			ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
			defer cancel()
			w.loader.Invalidate(ctx, contact)
		}),
	)
	w.unsubscribe = machine.Subscribe(func(snap conversation.Snapshot) {
		w.publish(machine, snap)
	})

	view := w.viewLocked()
	w.published = view.Version
	return view, w.listenersLocked()
}

// publish forwards a machine change to listeners. Changes from a replaced
// machine, and changes older than the last view delivered, are dropped.
func (w *Workspace) publish(source *conversation.Machine, snap conversation.Snapshot) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if w.machine != source || snap.Version <= w.published {
		w.mu.Unlock()
		return
	}
	w.published = snap.Version
	view := View{Contact: w.contact, Snapshot: snap}
	listeners := w.listenersLocked()
	w.mu.Unlock()

	emit(listeners, view)
}

func (w *Workspace) viewLocked() View {
	view := View{Contact: w.contact}
	if w.machine != nil {
		view.Snapshot = w.machine.Snapshot()
	} else {
		view.Turns = []support.Turn{}
	}
	return view
}

func (w *Workspace) listenersLocked() []func(View) {
	out := make([]func(View), 0, len(w.listeners))
	for _, fn := range w.listeners {
		out = append(out, fn)
	}
	return out
}

func (w *Workspace) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.generation++
	w.machine = nil
	w.dispatcher = nil
	w.listeners = make(map[uint64]func(View))
}

func emit(listeners []func(View), view View) {
	for _, fn := range listeners {
		fn(view)
	}
}
