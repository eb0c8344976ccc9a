package model

import (
	"time"
)

// EventType represents the type of answer event.
type EventType string

const (
	EventTypeAnswer   EventType = "answer"
	EventTypeDegraded EventType = "degraded"
)

// AnswerEvent is the audit record of one answered query.
type AnswerEvent struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id,omitempty"`
	Type               EventType `json:"type"`
	Query              string    `json:"query"`
	Answer             string    `json:"answer"`
	Confidence         float64   `json:"confidence"`
	DocumentsRetrieved int       `json:"documents_retrieved"`
	SourceTitles       []string  `json:"source_titles,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	LatencyMs          int64     `json:"latency_ms"`
	CreatedAt          time.Time `json:"created_at"`

	// Sequence is populated on read from the stream.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ErrorEvent represents an error event sent over SSE.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ReplayCompleteEvent marks the end of a replay.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	EventCount   int    `json:"event_count"`
}
