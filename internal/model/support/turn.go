package support

import "time"

// Role tells who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one rendered unit of conversation. Turns are never mutated after
// creation; their order inside a session is the transcript order.
type Turn struct {
	ID                string    `json:"id"`
	Role              Role      `json:"role"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
	FromKnowledgeBase bool      `json:"fromKnowledgeBase"`
	TicketCreated     bool      `json:"ticketCreated"`
	TicketID          *int      `json:"ticketId,omitempty"`
}

// ChoiceDirective is an action the backend offers as a button inside an
// assistant reply.
type ChoiceDirective struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	Description string `json:"description"`
}
