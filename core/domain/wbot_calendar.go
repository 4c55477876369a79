package domain

import (
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is the minimal booking shape handed to the calendar
// provider. Date/time parsing happens upstream of the core.
type CalendarEvent struct {
	BusinessID uuid.UUID `json:"business_id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Attendee   string    `json:"attendee"` // customer phone or email
	Notes      string    `json:"notes,omitempty"`
}

// CRMAction is a classified downstream CRM operation.
type CRMAction struct {
	BusinessID uuid.UUID `json:"business_id"`
	Kind       string    `json:"kind"` // crm_create_contact, crm_log_note
	Phone      string    `json:"phone"`
	Note       string    `json:"note,omitempty"`
}
