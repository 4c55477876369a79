package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

// =============================================================================
// FAQ Handler (stage 5)
// =============================================================================

// FAQSearcher is the matching cascade: semantic over cached embeddings, live
// refetch, then lexical scoring. A nil match is "no FAQ answers this".
type FAQSearcher interface {
	Match(ctx context.Context, businessID uuid.UUID, question string) (*domain.FAQMatch, error)
}

// FAQHandler answers from the business's FAQ set when a good enough match
// exists; otherwise it declines so the assistant handler takes over.
type FAQHandler struct {
	matcher FAQSearcher
}

func NewFAQHandler(matcher FAQSearcher) *FAQHandler {
	return &FAQHandler{matcher: matcher}
}

func (h *FAQHandler) Name() string { return "faq" }

func (h *FAQHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	match, err := h.matcher.Match(ctx, business.ID, msg.Text)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	return &domain.Reply{Text: match.Entry.Answer}, nil
}
