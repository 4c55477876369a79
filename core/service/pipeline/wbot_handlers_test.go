package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/countplus7/wbot-backend-sub000/core/domain"
)

type fakeState struct {
	mu      sync.Mutex
	pending map[string]*domain.PendingPrompt
}

func newFakeState() *fakeState {
	return &fakeState{pending: make(map[string]*domain.PendingPrompt)}
}

func stateKey(businessID uuid.UUID, sender string) string {
	return businessID.String() + ":" + sender
}

func (s *fakeState) SetPending(ctx context.Context, businessID uuid.UUID, sender string, prompt *domain.PendingPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[stateKey(businessID, sender)] = prompt
	return nil
}

func (s *fakeState) TakePending(ctx context.Context, businessID uuid.UUID, sender string) (*domain.PendingPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey(businessID, sender)
	p := s.pending[key]
	delete(s.pending, key)
	return p, nil
}

type fakeCalendar struct {
	created   []*domain.CalendarEvent
	cancelled []string
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, event *domain.CalendarEvent) (string, error) {
	c.created = append(c.created, event)
	return "evt-1", nil
}

func (c *fakeCalendar) CancelEvent(ctx context.Context, businessID, eventID string) error {
	c.cancelled = append(c.cancelled, eventID)
	return nil
}

type fakeCRM struct {
	contacts []*domain.CRMAction
	notes    []*domain.CRMAction
}

func (c *fakeCRM) CreateContact(ctx context.Context, action *domain.CRMAction) error {
	c.contacts = append(c.contacts, action)
	return nil
}

func (c *fakeCRM) LogNote(ctx context.Context, action *domain.CRMAction) error {
	c.notes = append(c.notes, action)
	return nil
}

type fakeChat struct {
	jsonResponse   string
	systemResponse string
	err            error
}

func (c *fakeChat) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return c.systemResponse, c.err
}

func (c *fakeChat) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.jsonResponse, c.err
}

type fixedClassifier struct {
	result *domain.ClassificationResult
}

func (c *fixedClassifier) Classify(ctx context.Context, text string) *domain.ClassificationResult {
	return c.result
}

type fixedMatcher struct {
	match *domain.FAQMatch
}

func (m *fixedMatcher) Match(ctx context.Context, businessID uuid.UUID, question string) (*domain.FAQMatch, error) {
	return m.match, nil
}

type countingClassifier struct {
	calls  int
	result *domain.ClassificationResult
}

func (c *countingClassifier) Classify(ctx context.Context, text string) *domain.ClassificationResult {
	c.calls++
	return c.result
}

func msgWithText(text string) *domain.InboundMessage {
	m := testMessage("m-" + text)
	m.Text = text
	return m
}

func TestCommandHandlerCancelWithPending(t *testing.T) {
	state := newFakeState()
	business := testBusiness()
	msg := msgWithText("cancel")
	_ = state.SetPending(context.Background(), business.ID, msg.From, &domain.PendingPrompt{Kind: PendingKindCalendarConfirm})

	h := NewCommandHandler(state)
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != "Okay, cancelled." {
		t.Errorf("reply = %+v", reply)
	}
	if p, _ := state.TakePending(context.Background(), business.ID, msg.From); p != nil {
		t.Error("pending prompt should have been consumed")
	}
}

func TestCommandHandlerDeclinesNonCommand(t *testing.T) {
	h := NewCommandHandler(newFakeState())
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("what are your hours"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestCommandHandlerWithoutStateStoreStillAnswersCancel(t *testing.T) {
	h := NewCommandHandler(nil)
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("cancel"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != "There's nothing to cancel right now." {
		t.Errorf("reply = %+v", reply)
	}
}

func TestFollowupHandlerWithoutStateStoreDeclines(t *testing.T) {
	h := NewFollowupHandler(nil, &fakeCalendar{})
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("yes"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestFollowupHandlerWithoutCalendarDeclinesConfirmation(t *testing.T) {
	state := newFakeState()
	business := testBusiness()
	msg := msgWithText("yes")
	_ = state.SetPending(context.Background(), business.ID, msg.From, &domain.PendingPrompt{Kind: PendingKindCalendarConfirm, Payload: "{}"})

	h := NewFollowupHandler(state, nil)
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestFollowupHandlerYesBooksEvent(t *testing.T) {
	state := newFakeState()
	calendar := &fakeCalendar{}
	business := testBusiness()
	msg := msgWithText("yes")

	event := domain.CalendarEvent{Title: "Haircut", Start: time.Now().Add(24 * time.Hour), End: time.Now().Add(25 * time.Hour)}
	payload, _ := json.Marshal(event)
	_ = state.SetPending(context.Background(), business.ID, msg.From, &domain.PendingPrompt{
		Kind:    PendingKindCalendarConfirm,
		Payload: string(payload),
	})

	h := NewFollowupHandler(state, calendar)
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil {
		t.Fatal("expected booking confirmation")
	}
	if len(calendar.created) != 1 {
		t.Fatalf("created = %d events, want 1", len(calendar.created))
	}
	if calendar.created[0].BusinessID != business.ID {
		t.Error("event not scoped to the business")
	}
}

func TestFollowupHandlerNoDiscardsPrompt(t *testing.T) {
	state := newFakeState()
	calendar := &fakeCalendar{}
	business := testBusiness()
	msg := msgWithText("no")
	_ = state.SetPending(context.Background(), business.ID, msg.From, &domain.PendingPrompt{Kind: PendingKindCalendarConfirm})

	h := NewFollowupHandler(state, calendar)
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil || reply == nil {
		t.Fatalf("reply = %+v, err = %v", reply, err)
	}
	if len(calendar.created) != 0 {
		t.Error("nothing should be booked on a no")
	}
	if p, _ := state.TakePending(context.Background(), business.ID, msg.From); p != nil {
		t.Error("prompt should stay consumed after a no")
	}
}

func TestFollowupHandlerAmbiguousRestoresPromptAndDeclines(t *testing.T) {
	state := newFakeState()
	business := testBusiness()
	msg := msgWithText("actually what time do you close")
	_ = state.SetPending(context.Background(), business.ID, msg.From, &domain.PendingPrompt{Kind: PendingKindCalendarConfirm})

	h := NewFollowupHandler(state, &fakeCalendar{})
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil || reply != nil {
		t.Fatalf("reply = %+v, err = %v, want decline", reply, err)
	}
	if p, _ := state.TakePending(context.Background(), business.ID, msg.From); p == nil {
		t.Error("ambiguous answers must not consume the prompt")
	}
}

func TestFollowupHandlerNoPendingDeclines(t *testing.T) {
	h := NewFollowupHandler(newFakeState(), &fakeCalendar{})
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("yes"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestCalendarHandlerProposesBooking(t *testing.T) {
	state := newFakeState()
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelCalendarCreate, Confidence: 0.9, Method: domain.MethodEmbedding}}
	chat := &fakeChat{jsonResponse: `{"title": "Haircut", "start": "2026-09-02T10:00:00Z", "end": "2026-09-02T10:30:00Z", "complete": true}`}
	business := testBusiness()
	msg := msgWithText("can I book a haircut wednesday 10am")

	h := NewCalendarHandler(classifier, chat, &fakeCalendar{}, state)
	reply, err := h.Handle(context.Background(), business, msg)
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil {
		t.Fatal("expected a confirmation prompt")
	}

	pending, _ := state.TakePending(context.Background(), business.ID, msg.From)
	if pending == nil || pending.Kind != PendingKindCalendarConfirm {
		t.Fatalf("pending = %+v, want calendar_confirm", pending)
	}
	var event domain.CalendarEvent
	if err := json.Unmarshal([]byte(pending.Payload), &event); err != nil {
		t.Fatal(err)
	}
	if event.Title != "Haircut" {
		t.Errorf("title = %q", event.Title)
	}
}

func TestCalendarHandlerIncompleteDetailsAsksForTime(t *testing.T) {
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelCalendarCreate}}
	chat := &fakeChat{jsonResponse: `{"title": "", "start": "", "end": "", "complete": false}`}

	h := NewCalendarHandler(classifier, chat, &fakeCalendar{}, newFakeState())
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("I'd like to book something"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text == "" {
		t.Fatal("should ask the customer for a concrete time")
	}
}

func TestCalendarHandlerDeclinesNonCalendarIntent(t *testing.T) {
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelGeneral}}
	h := NewCalendarHandler(classifier, &fakeChat{}, &fakeCalendar{}, newFakeState())

	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("hello"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestCalendarHandlerWithoutProviderDeclinesBeforeClassifying(t *testing.T) {
	classifier := &countingClassifier{result: &domain.ClassificationResult{Label: domain.LabelCalendarCreate}}

	h := NewCalendarHandler(classifier, &fakeChat{}, nil, newFakeState())
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("book me in tomorrow"))
	if err != nil || reply != nil {
		t.Fatalf("reply = %+v, err = %v, want decline", reply, err)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0 when no provider is wired", classifier.calls)
	}
}

func TestCalendarHandlerWithoutStateStoreDeclines(t *testing.T) {
	classifier := &countingClassifier{result: &domain.ClassificationResult{Label: domain.LabelCalendarCreate}}

	h := NewCalendarHandler(classifier, &fakeChat{}, &fakeCalendar{}, nil)
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("book me in tomorrow"))
	if err != nil || reply != nil {
		t.Fatalf("reply = %+v, err = %v, want decline", reply, err)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0 when no state store is wired", classifier.calls)
	}
}

func TestCalendarHandlerCancelsWithReference(t *testing.T) {
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelCalendarCancel}}
	chat := &fakeChat{jsonResponse: `{"event_id": "evt-42"}`}
	calendar := &fakeCalendar{}

	h := NewCalendarHandler(classifier, chat, calendar, newFakeState())
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("cancel booking evt-42"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil {
		t.Fatal("expected cancellation confirmation")
	}
	if len(calendar.cancelled) != 1 || calendar.cancelled[0] != "evt-42" {
		t.Errorf("cancelled = %v", calendar.cancelled)
	}
}

func TestActionHandlerCreatesContact(t *testing.T) {
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelCRMCreateContact}}
	crm := &fakeCRM{}

	h := NewActionHandler(classifier, crm)
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("please add me to your mailing list"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil {
		t.Fatal("expected an acknowledgement")
	}
	if len(crm.contacts) != 1 {
		t.Fatalf("contacts = %d, want 1", len(crm.contacts))
	}
	if crm.contacts[0].Phone != "+15550001111" {
		t.Errorf("phone = %q", crm.contacts[0].Phone)
	}
}

func TestActionHandlerDeclinesNonCRMIntent(t *testing.T) {
	classifier := &fixedClassifier{result: &domain.ClassificationResult{Label: domain.LabelFAQ}}
	h := NewActionHandler(classifier, &fakeCRM{})

	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("what are your hours"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestActionHandlerWithoutCRMDeclinesBeforeClassifying(t *testing.T) {
	classifier := &countingClassifier{result: &domain.ClassificationResult{Label: domain.LabelCRMCreateContact}}

	h := NewActionHandler(classifier, nil)
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("add me to your list"))
	if err != nil || reply != nil {
		t.Fatalf("reply = %+v, err = %v, want decline", reply, err)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier calls = %d, want 0 when no CRM is wired", classifier.calls)
	}
}

func TestFAQHandlerAnswersOnMatch(t *testing.T) {
	match := &domain.FAQMatch{
		Entry:  &domain.FAQEntry{Question: "opening hours", Answer: "We open 9-5."},
		Score:  0.8,
		Source: domain.FAQSourceSemanticCached,
	}
	h := NewFAQHandler(&fixedMatcher{match: match})

	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("when do you open"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != "We open 9-5." {
		t.Errorf("reply = %+v", reply)
	}
}

func TestFAQHandlerDeclinesWithoutMatch(t *testing.T) {
	h := NewFAQHandler(&fixedMatcher{})
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("anything"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}

func TestAssistantHandlerRepliesInTone(t *testing.T) {
	chat := &fakeChat{systemResponse: "Thanks for reaching out! We'll get back to you."}
	h := NewAssistantHandler(chat)

	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("random question"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text == "" {
		t.Fatal("expected a generative reply")
	}
}

func TestAssistantHandlerEmptyAnswerDeclines(t *testing.T) {
	h := NewAssistantHandler(&fakeChat{systemResponse: "   "})
	reply, err := h.Handle(context.Background(), testBusiness(), msgWithText("q"))
	if err != nil || reply != nil {
		t.Errorf("reply = %+v, err = %v, want decline", reply, err)
	}
}
