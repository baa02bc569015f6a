package support

import "time"

// SessionSummary describes a prior conversation the user may resume.
type SessionSummary struct {
	SessionID          string    `json:"sessionId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	MessageCount       int       `json:"messageCount"`
	LastMessagePreview *string   `json:"lastMessagePreview,omitempty"`
}

// ConversationSession is a point-in-time copy of the active conversation.
// The live value is owned by the conversation state machine.
type ConversationSession struct {
	SessionID string `json:"sessionId,omitempty"`
	Turns     []Turn `json:"turns"`
	Terminal  bool   `json:"terminal"`
}
