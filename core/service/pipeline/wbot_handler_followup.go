package pipeline

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

// =============================================================================
// Stateful Follow-up Handler (stage 2)
// =============================================================================

// PendingKindCalendarConfirm awaits a yes/no on a proposed booking; Payload
// carries the serialized CalendarEvent.
const PendingKindCalendarConfirm = "calendar_confirm"

var affirmativeWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
	"ok": true, "okay": true, "confirm": true, "confirmed": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true,
}

// FollowupHandler continues a stored yes/no prompt. The pending state is
// single-use: it is consumed on read, and put back only when the message is
// neither a yes nor a no so later handlers can interpret it instead.
type FollowupHandler struct {
	state    out.ConversationState
	calendar out.CalendarProvider
	log      *logger.Logger
}

func NewFollowupHandler(state out.ConversationState, calendar out.CalendarProvider) *FollowupHandler {
	return &FollowupHandler{
		state:    state,
		calendar: calendar,
		log:      logger.Default().WithField("component", "followup_handler"),
	}
}

func (h *FollowupHandler) Name() string { return "followup" }

func (h *FollowupHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	if h.state == nil {
		return nil, nil
	}

	pending, err := h.state.TakePending(ctx, business.ID, msg.From)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, nil
	}

	text := strings.ToLower(strings.TrimSpace(msg.Text))
	switch {
	case affirmativeWords[text]:
		return h.confirm(ctx, business, msg, pending)
	case negativeWords[text]:
		return &domain.Reply{Text: "No problem, we won't go ahead with that."}, nil
	default:
		// Not an answer to the prompt. Restore it and let the rest of the
		// chain interpret the message.
		if err := h.state.SetPending(ctx, business.ID, msg.From, pending); err != nil {
			h.log.WithError(err).Warn("failed to restore pending prompt")
		}
		return nil, nil
	}
}

func (h *FollowupHandler) confirm(ctx context.Context, business *domain.Business, msg *domain.InboundMessage, pending *domain.PendingPrompt) (*domain.Reply, error) {
	switch pending.Kind {
	case PendingKindCalendarConfirm:
		if h.calendar == nil {
			h.log.Warn("calendar provider not configured, cannot confirm booking")
			return nil, nil
		}
		var event domain.CalendarEvent
		if err := json.Unmarshal([]byte(pending.Payload), &event); err != nil {
			return nil, err
		}
		event.BusinessID = business.ID
		if _, err := h.calendar.CreateEvent(ctx, &event); err != nil {
			return nil, err
		}
		return &domain.Reply{Text: "You're booked in! " + event.Title + " on " + event.Start.Format("Mon 2 Jan, 15:04") + "."}, nil
	default:
		h.log.WithField("kind", pending.Kind).Warn("unknown pending prompt kind")
		return nil, nil
	}
}
