package support

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message     string `json:"message"`
	UserContact string `json:"user_contact"`
	SessionID   string `json:"session_id,omitempty"`
}

// ChatResponse is the backend answer to POST /chat.
type ChatResponse struct {
	Response      string `json:"response"`
	SessionID     string `json:"session_id"`
	IsFromKB      bool   `json:"is_from_kb"`
	TicketCreated bool   `json:"ticket_created"`
	TicketID      *int   `json:"ticket_id,omitempty"`
	ChatEnded     bool   `json:"chat_ended"`
}

// SessionRecord is one element of GET /sessions/{contact}.
type SessionRecord struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	LastMessage  *string   `json:"last_message"`
}

// Summary converts the wire record into the domain summary.
func (r SessionRecord) Summary() SessionSummary {
	count := r.MessageCount
	if count < 0 {
		count = 0
	}
	return SessionSummary{
		SessionID:          r.SessionID,
		CreatedAt:          r.CreatedAt.Time,
		UpdatedAt:          r.UpdatedAt.Time,
		MessageCount:       count,
		LastMessagePreview: r.LastMessage,
	}
}

// HistoryEntry is one stored exchange of GET /chat/history/{sessionId}.
type HistoryEntry struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	IsFromKB  bool      `json:"is_from_kb"`
	CreatedAt Timestamp `json:"created_at"`
}
