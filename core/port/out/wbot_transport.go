package out

import (
	"context"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// MessageSender defines the outbound port for the messaging transport.
// Sends are never retried blindly; a failed send surfaces as an error and
// the caller decides (duplicate customer-visible messages are worse than a
// dropped one).
type MessageSender interface {
	SendText(ctx context.Context, businessID string, msg *domain.OutboundMessage) error
}

// CalendarProvider defines the outbound port for calendar booking.
type CalendarProvider interface {
	CreateEvent(ctx context.Context, event *domain.CalendarEvent) (string, error)
	CancelEvent(ctx context.Context, businessID, eventID string) error
}

// CRMClient defines the outbound port for downstream CRM operations.
type CRMClient interface {
	CreateContact(ctx context.Context, action *domain.CRMAction) error
	LogNote(ctx context.Context, action *domain.CRMAction) error
}

// ResultCache defines the outbound port for classification result caching,
// keyed by normalized content hash.
type ResultCache interface {
	Get(ctx context.Context, hash string) (*domain.ClassificationResult, bool)
	Put(ctx context.Context, hash string, result *domain.ClassificationResult)
}
