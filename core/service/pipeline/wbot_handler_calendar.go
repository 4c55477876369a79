package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
	out "github.com/countplus7/wbot-backend-sub000/core/port/out"
)

// IntentClassifier resolves free-form text to a labeled intent. Results are
// cached by content hash, so the calendar and CRM handlers classifying the
// same message costs one embedding call, not two.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) *domain.ClassificationResult
}

// =============================================================================
// Calendar Intent Handler (stage 3)
// =============================================================================

// CalendarHandler detects booking and cancellation intents. A detected
// booking is extracted into a concrete event and proposed back to the
// customer as a yes/no prompt rather than booked immediately.
type CalendarHandler struct {
	classifier IntentClassifier
	chat       out.ChatModel
	calendar   out.CalendarProvider
	state      out.ConversationState
	now        func() time.Time
}

func NewCalendarHandler(classifier IntentClassifier, chat out.ChatModel, calendar out.CalendarProvider, state out.ConversationState) *CalendarHandler {
	return &CalendarHandler{
		classifier: classifier,
		chat:       chat,
		calendar:   calendar,
		state:      state,
		now:        time.Now,
	}
}

func (h *CalendarHandler) Name() string { return "calendar" }

func (h *CalendarHandler) Handle(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	// Decline before classifying: without a provider or a place to store the
	// pending prompt, a detected intent would only waste model calls.
	if h.calendar == nil || h.state == nil {
		return nil, nil
	}

	result := h.classifier.Classify(ctx, msg.Text)
	if !result.IsCalendarIntent() {
		return nil, nil
	}

	switch result.Label {
	case domain.LabelCalendarCreate:
		return h.proposeBooking(ctx, business, msg)
	case domain.LabelCalendarCancel:
		return h.cancelBooking(ctx, business, msg)
	}
	return nil, nil
}

// proposeBooking extracts a concrete event from the message and stores it as
// a pending prompt; the follow-up handler books it on "yes".
func (h *CalendarHandler) proposeBooking(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	event, err := h.extractEvent(ctx, msg)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &domain.Reply{Text: "Happy to book that for you — what day and time would suit?"}, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	question := fmt.Sprintf("Shall I book %s for %s? Reply yes to confirm.",
		event.Title, event.Start.Format("Mon 2 Jan at 15:04"))
	pending := &domain.PendingPrompt{
		Kind:      PendingKindCalendarConfirm,
		Payload:   string(payload),
		Question:  question,
		CreatedAt: h.now(),
	}
	if err := h.state.SetPending(ctx, business.ID, msg.From, pending); err != nil {
		return nil, err
	}

	return &domain.Reply{Text: question}, nil
}

func (h *CalendarHandler) cancelBooking(ctx context.Context, business *domain.Business, msg *domain.InboundMessage) (*domain.Reply, error) {
	eventID, err := h.extractEventID(ctx, msg.Text)
	if err != nil {
		return nil, err
	}
	if eventID == "" {
		return &domain.Reply{Text: "Sure — could you send the booking reference from your confirmation message?"}, nil
	}

	if err := h.calendar.CancelEvent(ctx, business.ID.String(), eventID); err != nil {
		return nil, err
	}
	return &domain.Reply{Text: "Your booking has been cancelled."}, nil
}

// extractEvent asks the chat model for structured booking fields. A nil
// event with a nil error means the message did not carry enough detail.
func (h *CalendarHandler) extractEvent(ctx context.Context, msg *domain.InboundMessage) (*domain.CalendarEvent, error) {
	prompt := fmt.Sprintf(`Extract booking details from this customer message.
Today is %s.

Message:
%s

Respond with a single JSON object:
{"title": "<short description>", "start": "<RFC3339 datetime>", "end": "<RFC3339 datetime>", "complete": <true if a concrete date and time are present>}`,
		h.now().Format("Monday, 2 January 2006"), msg.Text)

	raw, err := h.chat.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title    string `json:"title"`
		Start    string `json:"start"`
		End      string `json:"end"`
		Complete bool   `json:"complete"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || !parsed.Complete {
		return nil, nil
	}

	start, err := time.Parse(time.RFC3339, parsed.Start)
	if err != nil {
		return nil, nil
	}
	end, err := time.Parse(time.RFC3339, parsed.End)
	if err != nil || !end.After(start) {
		end = start.Add(time.Hour)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = "Appointment"
	}

	return &domain.CalendarEvent{
		Title:    title,
		Start:    start,
		End:      end,
		Attendee: msg.From,
		Notes:    msg.Text,
	}, nil
}

func (h *CalendarHandler) extractEventID(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`If this message contains a booking reference or event id, return it.

Message:
%s

Respond with a single JSON object: {"event_id": "<id or empty string>"}`, text)

	raw, err := h.chat.CompleteJSON(ctx, prompt)
	if err != nil {
		return "", err
	}

	var parsed struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", nil
	}
	return strings.TrimSpace(parsed.EventID), nil
}
