package pipeline

import (
	"context"
	"strings"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
)

// =============================================================================
// Explicit Command Handler (stage 1)
// =============================================================================

// cancelKeywords terminate any pending follow-up prompt for the sender.
var cancelKeywords = map[string]bool{
	"cancel":    true,
	"stop":      true,
	"nevermind": true,
}

// CommandHandler resolves explicit keyword commands before any classifier
// runs, so "cancel" always works regardless of what the models would think
// the message means.
type CommandHandler struct {
	state out.ConversationState
}

func NewCommandHandler(state out.ConversationState) *CommandHandler {
	return &CommandHandler{state: state}
}

func (h *CommandHandler) Name() string { return "command" }

func (h *CommandHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	if !cancelKeywords[text] {
		return nil, nil
	}
	if h.state == nil {
		// No state store means there can be no pending prompt to cancel.
		return &domain.Reply{Text: "There's nothing to cancel right now."}, nil
	}

	pending, err := h.state.TakePending(ctx, business.ID, msg.From)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return &domain.Reply{Text: "There's nothing to cancel right now."}, nil
	}
	return &domain.Reply{Text: "Okay, cancelled."}, nil
}
