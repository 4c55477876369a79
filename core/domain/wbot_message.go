package domain

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessage is a single customer message extracted from a webhook
// delivery. The provider-assigned MessageID is the deduplication key;
// everything else is opaque to the core.
type InboundMessage struct {
	MessageID  string    `json:"message_id"`
	BusinessID uuid.UUID `json:"business_id"`
	From       string    `json:"from"` // sender phone in E.164
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is a reply queued for the messaging transport.
type OutboundMessage struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Reply is what a pipeline handler returns; a nil Reply means the handler
// declined and the next handler in the chain runs.
type Reply struct {
	Text string
	// Silent marks the message as handled without an outbound send
	// (e.g. a consumed cancel command with nothing to cancel).
	Silent bool
}

// Business identifies a tenant. Messages, FAQ entries and calendar/CRM
// credentials are all scoped by business.
type Business struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	PhoneNumberID string    `json:"phone_number_id" db:"phone_number_id"`
	Tone          string    `json:"tone" db:"tone"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// PendingPrompt is the stored yes/no continuation state for a sender.
// Single-use: consumed when the follow-up handler reads it.
type PendingPrompt struct {
	Kind      string    `json:"kind"` // e.g. "calendar_confirm"
	Payload   string    `json:"payload"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}
