package comm

import (
	"encoding/json"
	"time"
)

// NATS subjects used between clients and the flip engine.
const (
	SubjectSubmit = "flip.submit"
	SubjectEvents = "flip.events"
)

// Result codes carried back in a SubmissionResult. Validation failures
// are retry-futile; stale and internal failures are safe to retry.
const (
	CodeOK         = "ok"
	CodeValidation = "validation_failed"
	CodeStale      = "stale_submission"
	CodeDuplicate  = "duplicate_submission"
	CodeBadPayload = "bad_payload"
	CodeInternal   = "internal_error"
)

// Submission is the transport envelope for one encoded operation.
// Payload is the base64 form of the binary record, Amount the value in
// nano units attached for escrow plus gas, ValidUntil a unix timestamp
// after which the engine must reject the submission as stale.
type Submission struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	Target     string `json:"target"`
	Amount     int64  `json:"amount"`
	Payload    string `json:"payload"`
	ValidUntil int64  `json:"valid_until"`
}

// SubmissionResult is the engine's verdict on a submission.
type SubmissionResult struct {
	SubmissionID string `json:"submission_id"`
	Accepted     bool   `json:"accepted"`
	Code         string `json:"code"`
	Error        string `json:"error,omitempty"`
	MatchID      uint64 `json:"match_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Retryable reports whether resubmitting the same operation can
// possibly succeed.
func (r *SubmissionResult) Retryable() bool {
	return r.Code == CodeStale || r.Code == CodeInternal
}

// WSMessage is the framing for websocket and NATS event traffic.
type WSMessage struct {
	Type string          `json:"type"` // e.g. "match_update"
	Data json.RawMessage `json:"data"`
}

// MatchEvent notifies subscribers of a match state transition.
type MatchEvent struct {
	MatchID   uint64    `json:"match_id"`
	Status    string    `json:"status"`
	Winner    string    `json:"winner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
