package model

import (
	"time"
)

// Session is a conversation owned by the memory component.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
	Active    bool      `json:"active"`

	// Version supports optimistic locking in shared session stores.
	Version int64 `json:"version"`
}

// Clone returns a copy with its own message slice.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

// Summary returns the session summary view.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Active:       s.Active,
	}
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"active"`
}

// CreateSessionRequest is the request to create a new session.
type CreateSessionRequest struct {
	Title string `json:"title" validate:"max=256"`
}

// CreateSessionResponse is returned after creating a session.
type CreateSessionResponse struct {
	ID string `json:"id"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// ListMessagesResponse is the response for listing session messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
