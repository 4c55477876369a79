package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
)

// =============================================================================
// Generative Assistant Handler (stage 6, catch-all)
// =============================================================================

// AssistantHandler is the last real handler in the chain: an open-ended
// reply in the business's configured tone. It declines on upstream failure
// so the pipeline can fall back to the static apology.
type AssistantHandler struct {
	chat out.ChatModel
}

func NewAssistantHandler(chat out.ChatModel) *AssistantHandler {
	return &AssistantHandler{chat: chat}
}

func (h *AssistantHandler) Name() string { return "assistant" }

func (h *AssistantHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	tone := business.Tone
	if tone == "" {
		tone = "friendly and professional"
	}

	system := fmt.Sprintf(`You are the WhatsApp assistant for %s.
Tone: %s.
Answer the customer in one or two short sentences. If you don't know, say so and offer to pass the question to the team. Never invent prices, opening hours, or policies.`,
		business.Name, tone)

	answer, err := h.chat.CompleteWithSystem(ctx, system, msg.Text)
	if err != nil {
		return nil, err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, nil
	}
	return &domain.Reply{Text: answer}, nil
}
