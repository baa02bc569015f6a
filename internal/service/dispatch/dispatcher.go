package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/choice"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
)

// ErrNotOffered is returned for directive actions the conversation does not
// currently offer.
var ErrNotOffered = errors.New("choice not offered")

// Backend sends one chat exchange.
type Backend interface {
	Chat(ctx context.Context, req support.ChatRequest) (support.ChatResponse, error)
}

// Status summarises what a send achieved.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusEscalated Status = "escalated"
	StatusEnded     Status = "ended"
	StatusFailed    Status = "failed"
	StatusIgnored   Status = "ignored"
)

// Outcome is the result of one Send or Activate.
type Outcome struct {
	Status     Status                    `json:"status"`
	Turn       *support.Turn             `json:"turn,omitempty"`
	Directives []support.ChoiceDirective `json:"directives,omitempty"`
	TicketID   *int                      `json:"ticketId,omitempty"`
	Notice     string                    `json:"notice,omitempty"`
	Err        error                     `json:"-"`
}

// Dispatcher runs request/response rounds for one conversation.
type Dispatcher struct {
	backend    Backend
	machine    *conversation.Machine
	contact    support.Contact
	parser     choice.Parser
	timeout    time.Duration
	onAssigned func(sessionID string)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithParser sets the choice protocol parser.
func WithParser(p choice.Parser) Option {
	return func(d *Dispatcher) {
		d.parser = p
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithSessionAssigned registers fn to run when the backend assigns the
// conversation its session identifier.
func WithSessionAssigned(fn func(sessionID string)) Option {
	return func(d *Dispatcher) {
		d.onAssigned = fn
	}
}

// New binds a dispatcher to machine and the resolved contact.
func New(backend Backend, machine *conversation.Machine, contact support.Contact, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend: backend,
		machine: machine,
		contact: contact,
		parser:  choice.Default,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send submits text and waits for the backend's answer.
func (d *Dispatcher) Send(ctx context.Context, text string) Outcome {
	exchange, err := d.machine.Submit(text)
	if err != nil {
		return Outcome{Status: StatusIgnored, Err: err}
	}

	req := support.ChatRequest{
		Message:     exchange.Turn.Text,
		UserContact: d.contact.String(),
		SessionID:   exchange.SessionID,
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.backend.Chat(callCtx, req)
	if err != nil {
		return d.fail(exchange, err)
	}

	parsed := d.parser.Parse(resp.Response)
	turn, err := d.machine.OnReplyReceived(exchange, conversation.Reply{
		SessionID:         resp.SessionID,
		Prose:             parsed.Prose,
		Directives:        parsed.Directives,
		FromKnowledgeBase: resp.IsFromKB,
		TicketCreated:     resp.TicketCreated,
		TicketID:          resp.TicketID,
		ChatEnded:         resp.ChatEnded,
	})
	if err != nil {
		log.Printf("[dispatch] discarding reply for session=%s: %v", resp.SessionID, err)
		return Outcome{Status: StatusIgnored, Err: err}
	}

	if exchange.SessionID == "" && resp.SessionID != "" && d.onAssigned != nil {
		d.onAssigned(resp.SessionID)
	}

	outcome := Outcome{Status: StatusDelivered, Turn: &turn}
	switch {
	case resp.TicketCreated:
		outcome.Status = StatusEscalated
		outcome.TicketID = turn.TicketID
		outcome.Notice = ticketNotice(turn.TicketID)
		log.Printf("[dispatch] ticket created for session=%s ticket=%v", resp.SessionID, derefTicket(turn.TicketID))
	case resp.ChatEnded:
		outcome.Status = StatusEnded
		outcome.Notice = "This conversation has ended."
	default:
		outcome.Directives = parsed.Directives
	}
	return outcome
}

// Activate sends the action of an offered directive as if the user typed
// it. Actions that are not on offer are ignored.
func (d *Dispatcher) Activate(ctx context.Context, action string) Outcome {
	directive, ok := d.machine.TakeDirective(action)
	if !ok {
		return Outcome{Status: StatusIgnored, Err: fmt.Errorf("%w: %q", ErrNotOffered, action)}
	}
	return d.Send(ctx, directive.Action)
}

func (d *Dispatcher) fail(exchange conversation.Exchange, err error) Outcome {
	kind := support.KindOf(err)
	log.Printf("[dispatch] exchange failed for session=%s: %v", exchange.SessionID, err)

	turn, recErr := d.machine.OnReplyFailed(exchange, kind)
	if recErr != nil {
		return Outcome{Status: StatusIgnored, Err: recErr}
	}
	return Outcome{
		Status: StatusFailed,
		Turn:   &turn,
		Notice: support.UserMessage(kind),
		Err:    err,
	}
}

func ticketNotice(id *int) string {
	if id == nil {
		return "A support ticket has been created for further assistance."
	}
	return fmt.Sprintf("A support ticket #%d has been created for further assistance.", *id)
}

func derefTicket(id *int) any {
	if id == nil {
		return "(none)"
	}
	return *id
}
