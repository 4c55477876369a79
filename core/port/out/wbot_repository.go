package out

import (
	"context"

	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// MessageLog defines the outbound port for the message deduplication log.
type MessageLog interface {
	// Insert records a provider message id. It returns false when the id is
	// already present; the insert itself is the single point of truth for
	// duplicate-delivery races.
	Insert(ctx context.Context, messageID string, businessID uuid.UUID) (bool, error)

	// MarkHandled records which handler resolved the message.
	MarkHandled(ctx context.Context, messageID, handlerName string) error
}

// LabelRepository defines the outbound port for intent labels and their
// weighted examples.
type LabelRepository interface {
	ListActive(ctx context.Context) ([]*domain.Label, error)

	// BulkAddExamples stores precomputed example embeddings for a label.
	// Examples are immutable once stored.
	BulkAddExamples(ctx context.Context, labelName string, examples []domain.Example) error

	// Deactivate disables a label and deletes its examples.
	Deactivate(ctx context.Context, labelName string) error
}

// FAQRepository defines the outbound port for per-business FAQ entries.
type FAQRepository interface {
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*domain.FAQEntry, error)

	// ReplaceForBusiness swaps the whole FAQ set for a business in one
	// transaction (wholesale refresh).
	ReplaceForBusiness(ctx context.Context, businessID uuid.UUID, entries []*domain.FAQEntry) error
}

// BusinessRepository defines the outbound port for tenant lookup.
type BusinessRepository interface {
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Business, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
}

// ConversationState defines the outbound port for single-use follow-up
// prompt state keyed by (business, sender).
type ConversationState interface {
	SetPending(ctx context.Context, businessID uuid.UUID, sender string, prompt *domain.PendingPrompt) error

	// TakePending returns and atomically consumes the pending prompt, or
	// nil when none is stored.
	TakePending(ctx context.Context, businessID uuid.UUID, sender string) (*domain.PendingPrompt, error)
}

// PayloadArchive defines the outbound port for raw webhook payload storage,
// used for replay and debugging.
type PayloadArchive interface {
	Store(ctx context.Context, messageID string, payload []byte) error
}
