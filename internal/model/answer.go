package model

import (
	"encoding/json"
	"time"
)

// AnswerRequest is the inbound request for a grounded answer.
type AnswerRequest struct {
	Query     string `json:"query" validate:"required,max=10000"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// AnswerResponse is the result of one question. ProcessingTime is encoded
// as fractional seconds under "processing_time".
type AnswerResponse struct {
	Answer             string        `json:"answer"`
	Sources            []SourceRef   `json:"sources"`
	Citations          []Citation    `json:"citations"`
	Confidence         float64       `json:"confidence"`
	ProcessingTime     time.Duration `json:"-"`
	DocumentsRetrieved int           `json:"documents_retrieved"`
	SessionID          string        `json:"session_id,omitempty"`
	Suggestions        []string      `json:"suggestions"`
}

type answerResponseJSON struct {
	answerResponseAlias
	ProcessingTime float64 `json:"processing_time"`
}

type answerResponseAlias AnswerResponse

// MarshalJSON implements json.Marshaler.
func (r AnswerResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(answerResponseJSON{
		answerResponseAlias: answerResponseAlias(r),
		ProcessingTime:      r.ProcessingTime.Seconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AnswerResponse) UnmarshalJSON(data []byte) error {
	var v answerResponseJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = AnswerResponse(v.answerResponseAlias)
	r.ProcessingTime = time.Duration(v.ProcessingTime * float64(time.Second))
	return nil
}

// SourceRef describes a document used to ground an answer.
type SourceRef struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Type      string  `json:"type"`
	Relevance float64 `json:"relevance"`
	Timestamp string  `json:"timestamp"`
}

// Citation is a short excerpt of a source backing an answer.
type Citation struct {
	SourceTitle string  `json:"source_title"`
	Excerpt     string  `json:"excerpt"`
	Confidence  float64 `json:"confidence"`
}
