package domain

import (
	"encoding/json"
	"time"
)

// WebhookEvent is an accepted inbound event. Its presence in the event
// store is the deduplication mechanism: once stored, re-deliveries of the
// same id are reported as duplicates and the record is never overwritten.
type WebhookEvent struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
