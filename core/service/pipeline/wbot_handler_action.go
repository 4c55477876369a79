package pipeline

import (
	"context"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
)

// =============================================================================
// CRM Action Handler (stage 4)
// =============================================================================

// ActionHandler routes CRM intents to the downstream CRM. The classify call
// here is a cache hit: the calendar handler already classified this text.
type ActionHandler struct {
	classifier IntentClassifier
	crm        out.CRMClient
}

func NewActionHandler(classifier IntentClassifier, crm out.CRMClient) *ActionHandler {
	return &ActionHandler{classifier: classifier, crm: crm}
}

func (h *ActionHandler) Name() string { return "crm_action" }

func (h *ActionHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	if h.crm == nil {
		return nil, nil
	}

	result := h.classifier.Classify(ctx, msg.Text)
	if !result.IsCRMIntent() {
		return nil, nil
	}

	action := &domain.CRMAction{
		BusinessID: business.ID,
		Kind:       result.Label,
		Phone:      msg.From,
		Note:       msg.Text,
	}

	switch result.Label {
	case domain.LabelCRMCreateContact:
		if err := h.crm.CreateContact(ctx, action); err != nil {
			return nil, err
		}
		return &domain.Reply{Text: "Thanks! We've saved your details and someone will be in touch."}, nil
	case domain.LabelCRMLogNote:
		if err := h.crm.LogNote(ctx, action); err != nil {
			return nil, err
		}
		return &domain.Reply{Text: "Got it — we've passed that along to the team."}, nil
	}
	return nil, nil
}
